package lifecycle

import (
	"testing"
	"time"

	"github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusPaid,
	domain.OrderStatusProvisioning,
	domain.OrderStatusCompleted,
	domain.OrderStatusActive,
	domain.OrderStatusDepleted,
	domain.OrderStatusExpired,
	domain.OrderStatusFailed,
	domain.OrderStatusRefunded,
}

func TestNext_AllowedGraph(t *testing.T) {
	tests := []struct {
		from  domain.OrderStatus
		event domain.EventType
		to    domain.OrderStatus
	}{
		{domain.OrderStatusPending, domain.EventPaymentCaptured, domain.OrderStatusPaid},
		{domain.OrderStatusPaid, domain.EventProvisioningAccepted, domain.OrderStatusProvisioning},
		{domain.OrderStatusProvisioning, domain.EventProvisioningCompleted, domain.OrderStatusCompleted},
		{domain.OrderStatusPaid, domain.EventProvisioningFailed, domain.OrderStatusFailed},
		{domain.OrderStatusProvisioning, domain.EventProvisioningFailed, domain.OrderStatusFailed},
		{domain.OrderStatusCompleted, domain.EventProfileActivated, domain.OrderStatusActive},
		{domain.OrderStatusActive, domain.EventUsageDepleted, domain.OrderStatusDepleted},
		{domain.OrderStatusDepleted, domain.EventUsageReplenished, domain.OrderStatusActive},
		{domain.OrderStatusActive, domain.EventUsageRecorded, domain.OrderStatusActive},
		{domain.OrderStatusCompleted, domain.EventUsageRecorded, domain.OrderStatusCompleted},
		{domain.OrderStatusDepleted, domain.EventUsageRecorded, domain.OrderStatusDepleted},
		{domain.OrderStatusActive, domain.EventOrderExpired, domain.OrderStatusExpired},
		{domain.OrderStatusCompleted, domain.EventOrderExpired, domain.OrderStatusExpired},
		{domain.OrderStatusProvisioning, domain.EventOrderExpired, domain.OrderStatusExpired},
		{domain.OrderStatusFailed, domain.EventOrderRefunded, domain.OrderStatusRefunded},
		{domain.OrderStatusDepleted, domain.EventOrderRefunded, domain.OrderStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			to, ok := Next(tt.from, tt.event)
			require.True(t, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestNext_RejectsOutOfOrderEvents(t *testing.T) {
	tests := []struct {
		from  domain.OrderStatus
		event domain.EventType
	}{
		{domain.OrderStatusPending, domain.EventProvisioningCompleted},
		{domain.OrderStatusPending, domain.EventProfileActivated},
		{domain.OrderStatusPaid, domain.EventPaymentCaptured},
		{domain.OrderStatusCompleted, domain.EventProvisioningCompleted},
		{domain.OrderStatusActive, domain.EventUsageReplenished},
		{domain.OrderStatusDepleted, domain.EventUsageDepleted},
		{domain.OrderStatusDepleted, domain.EventOrderExpired},
		{domain.OrderStatusExpired, domain.EventProfileActivated},
		{domain.OrderStatusExpired, domain.EventOrderRefunded},
		{domain.OrderStatusRefunded, domain.EventOrderRefunded},
		{domain.OrderStatusFailed, domain.EventProvisioningAccepted},
	}

	for _, tt := range tests {
		assert.False(t, IsAllowed(tt.from, tt.event), "%s must not accept %s", tt.from, tt.event)
	}
}

func TestNext_TerminalStatesOnlyAcceptRefund(t *testing.T) {
	events := []domain.EventType{
		domain.EventPaymentCaptured,
		domain.EventProvisioningAccepted,
		domain.EventProvisioningCompleted,
		domain.EventProvisioningFailed,
		domain.EventProfileActivated,
		domain.EventUsageRecorded,
		domain.EventUsageDepleted,
		domain.EventUsageReplenished,
		domain.EventOrderExpired,
	}
	for _, status := range []domain.OrderStatus{domain.OrderStatusExpired, domain.OrderStatusRefunded, domain.OrderStatusFailed} {
		for _, ev := range events {
			assert.False(t, IsAllowed(status, ev), "%s must not accept %s", status, ev)
		}
	}
}

func TestNext_RefundFromEveryNonTerminalStatus(t *testing.T) {
	for _, status := range allStatuses {
		want := status != domain.OrderStatusRefunded && status != domain.OrderStatusExpired
		assert.Equal(t, want, IsAllowed(status, domain.EventOrderRefunded), string(status))
	}
	assert.False(t, IsAllowed(domain.OrderStatus("bogus"), domain.EventOrderRefunded))
}

func TestPlan_PaymentCaptured(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	order := domain.Order{Status: domain.OrderStatusPending, Currency: "usd"}

	_, err := Plan(order, domain.Event{Type: domain.EventPaymentCaptured}, now)
	assert.ErrorIs(t, err, domain.ErrMissingPaymentFacts)

	tr, err := Plan(order, domain.Event{
		Type: domain.EventPaymentCaptured,
		Payment: &domain.PaymentFacts{
			Provider:  "stripe",
			Reference: "pi_123",
			Amount:    1299,
			Currency:  "usd",
		},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, tr.To)
	assert.Equal(t, "paid", tr.Fields["status"])
	assert.Equal(t, "pi_123", tr.Fields["payment_reference"])
	assert.Equal(t, "USD", tr.Next.Currency)
	require.NotNil(t, tr.Next.PaidAt)
	assert.Equal(t, now, *tr.Next.PaidAt)
}

func TestPlan_ProvisioningCompletedRequiresActivationDetails(t *testing.T) {
	now := time.Now()
	order := domain.Order{Status: domain.OrderStatusProvisioning}

	_, err := Plan(order, domain.Event{
		Type:       domain.EventProvisioningCompleted,
		Activation: &domain.ActivationDetails{SMDPAddress: "smdp.example.com"},
	}, now)
	assert.ErrorIs(t, err, domain.ErrIncompleteActivation)

	tr, err := Plan(order, domain.Event{
		Type: domain.EventProvisioningCompleted,
		Activation: &domain.ActivationDetails{
			ICCID:          "8988000000000000001",
			SMDPAddress:    "smdp.example.com",
			ActivationCode: "ABC-123",
		},
	}, now)
	require.NoError(t, err)
	assert.True(t, tr.Next.HasActivationDetails())
	assert.Equal(t, "ABC-123", tr.Fields["activation_code"])
	assert.Equal(t, "8988000000000000001", tr.Fields["iccid"])
	assert.NotContains(t, tr.Fields, "install_url")
}

func TestPlan_TopUpCompletesWithoutActivationDetails(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	order := domain.Order{Status: domain.OrderStatusProvisioning, IsTopup: true}

	tr, err := Plan(order, domain.Event{Type: domain.EventProvisioningCompleted}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, tr.To)
	assert.False(t, tr.Next.HasActivationDetails())
	assert.Equal(t, now, tr.Fields["completed_at"])
	assert.NotContains(t, tr.Fields, "activation_code")
}

func TestPlan_ActivationDetailsAreImmutable(t *testing.T) {
	code := "OLD"
	order := domain.Order{Status: domain.OrderStatusProvisioning, ActivationCode: &code}

	_, err := Plan(order, domain.Event{
		Type:       domain.EventProvisioningCompleted,
		Activation: &domain.ActivationDetails{SMDPAddress: "smdp", ActivationCode: "NEW"},
	}, time.Now())
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestPlan_ExpiryNeedsElapsedValidity(t *testing.T) {
	activated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	order := domain.Order{Status: domain.OrderStatusActive, ActivatedAt: &activated}
	ev := domain.Event{Type: domain.EventOrderExpired, ValidityDays: 7}

	_, err := Plan(order, ev, activated.Add(7*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotYetExpired)

	tr, err := Plan(order, ev, activated.Add(7*24*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, tr.To)

	_, err = Plan(domain.Order{Status: domain.OrderStatusCompleted}, ev, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotYetExpired)
}

func TestPlan_UsageEventsMustAgreeWithRemaining(t *testing.T) {
	now := time.Now()
	active := domain.Order{Status: domain.OrderStatusActive}
	depleted := domain.Order{Status: domain.OrderStatusDepleted}

	_, err := Plan(active, domain.Event{Type: domain.EventUsageDepleted, Usage: &domain.UsageFacts{UsedBytes: 10, RemainingBytes: 5}}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidUsage)

	_, err = Plan(depleted, domain.Event{Type: domain.EventUsageReplenished, Usage: &domain.UsageFacts{RemainingBytes: 0}}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidUsage)

	_, err = Plan(active, domain.Event{Type: domain.EventUsageRecorded}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidUsage)

	tr, err := Plan(active, domain.Event{Type: domain.EventUsageDepleted, Usage: &domain.UsageFacts{UsedBytes: 1 << 30}}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDepleted, tr.Next.Status)
	assert.Equal(t, int64(0), tr.Next.DataRemainingBytes)
	assert.Equal(t, int64(1<<30), tr.Fields["data_used_bytes"])
}

func TestPlan_ProfileActivatedDefaultsToPartnerSource(t *testing.T) {
	tr, err := Plan(domain.Order{Status: domain.OrderStatusCompleted}, domain.Event{Type: domain.EventProfileActivated}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, tr.Next.ActivationSource)
	assert.Equal(t, domain.ActivationSourcePartnerEvent, *tr.Next.ActivationSource)
	assert.NotNil(t, tr.Next.ActivatedAt)
}

func TestPlan_IllegalTransitionLeavesNothingToWrite(t *testing.T) {
	tr, err := Plan(domain.Order{Status: domain.OrderStatusPending}, domain.Event{Type: domain.EventProfileActivated}, time.Now())
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Nil(t, tr.Fields)
}
