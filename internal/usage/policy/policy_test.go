package policy

import (
	"testing"
	"time"

	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_DepletionFloor(t *testing.T) {
	d := Evaluate(orderdomain.OrderStatusActive, 999_600_000, 1_000_000_000, 0)
	assert.Equal(t, int64(0), d.RemainingBytes)
	assert.True(t, d.HasProposal)
	assert.Equal(t, orderdomain.OrderStatusDepleted, d.Proposed)
	assert.Equal(t, orderdomain.EventUsageDepleted, d.Event)
}

func TestEvaluate_HalfUsedStaysActive(t *testing.T) {
	d := Evaluate(orderdomain.OrderStatusActive, 500_000_000, 1_000_000_000, 0)
	assert.Equal(t, int64(500_000_000), d.RemainingBytes)
	assert.Equal(t, orderdomain.OrderStatusActive, d.Proposed)
	assert.Equal(t, orderdomain.EventUsageRecorded, d.Event)
}

func TestEvaluate_BonusReplenishesDepleted(t *testing.T) {
	d := Evaluate(orderdomain.OrderStatusDepleted, 1_000_000_000, 1_000_000_000, 200_000_000)
	assert.Equal(t, int64(200_000_000), d.RemainingBytes)
	assert.Equal(t, orderdomain.OrderStatusActive, d.Proposed)
	assert.Equal(t, orderdomain.EventUsageReplenished, d.Event)
}

func TestEvaluate_SmallBonusBelowFloorStillDepleted(t *testing.T) {
	d := Evaluate(orderdomain.OrderStatusDepleted, 2_000_000_000, 1_000_000_000, 500_000)
	assert.Equal(t, int64(0), d.RemainingBytes)
	assert.Equal(t, orderdomain.OrderStatusDepleted, d.Proposed)
	assert.Equal(t, orderdomain.EventUsageRecorded, d.Event)
}

func TestEvaluate_ProviderRegressionNeverNegative(t *testing.T) {
	tests := []struct {
		used, total, bonus int64
	}{
		{used: 5_000_000_000, total: 1_000_000_000},
		{used: -10, total: -20},
		{used: 0, total: 0, bonus: -5},
	}
	for _, tt := range tests {
		d := Evaluate(orderdomain.OrderStatusActive, tt.used, tt.total, tt.bonus)
		assert.GreaterOrEqual(t, d.RemainingBytes, int64(0))
		assert.GreaterOrEqual(t, d.UsedBytes, int64(0))
	}
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	first := Evaluate(orderdomain.OrderStatusActive, 700_000_000, 1_000_000_000, 50_000_000)
	second := Evaluate(first.Proposed, 700_000_000, 1_000_000_000, 50_000_000)
	assert.Equal(t, first.RemainingBytes, second.RemainingBytes)
	assert.Equal(t, first.Proposed, second.Proposed)
	assert.Equal(t, orderdomain.EventUsageRecorded, second.Event)
}

func TestEvaluate_OtherStatusesHaveNoProposal(t *testing.T) {
	completed := Evaluate(orderdomain.OrderStatusCompleted, 10, 1_000_000_000, 0)
	assert.False(t, completed.HasProposal)
	assert.Equal(t, orderdomain.EventUsageRecorded, completed.Event)

	for _, status := range []orderdomain.OrderStatus{
		orderdomain.OrderStatusPending,
		orderdomain.OrderStatusPaid,
		orderdomain.OrderStatusProvisioning,
		orderdomain.OrderStatusExpired,
		orderdomain.OrderStatusFailed,
		orderdomain.OrderStatusRefunded,
	} {
		d := Evaluate(status, 10, 1_000_000_000, 0)
		assert.False(t, d.HasProposal, string(status))
		_, ok := d.ToEvent(time.Now())
		assert.False(t, ok, string(status))
	}
}

func TestDecisionToEvent(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ev, ok := Evaluate(orderdomain.OrderStatusActive, 1_000_000_000, 1_000_000_000, 0).ToEvent(at)
	require.True(t, ok)
	assert.Equal(t, orderdomain.EventUsageDepleted, ev.Type)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, int64(0), ev.Usage.RemainingBytes)
	assert.Equal(t, at, ev.Usage.SampledAt)
}
