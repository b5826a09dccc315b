package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id, userID, planID snowflake.ID, status orderdomain.OrderStatus, now time.Time) *orderdomain.Order {
	return &orderdomain.Order{
		ID:        id,
		UserID:    userID,
		PlanID:    planID,
		Status:    status,
		Amount:    1000,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCompareAndSwap_OnlyOneWriterWins(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := Provide()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, db, newOrder(1, 10, 20, orderdomain.OrderStatusPending, now)))

	ok, err := repo.CompareAndSwap(ctx, db, 1, orderdomain.OrderStatusPending, map[string]any{
		"status":            "paid",
		"payment_reference": "pi_1",
		"updated_at":        now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSwap(ctx, db, 1, orderdomain.OrderStatusPending, map[string]any{
		"status":            "paid",
		"payment_reference": "pi_2",
		"updated_at":        now,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, orderdomain.OrderStatusPaid, got.Status)
	require.NotNil(t, got.PaymentReference)
	assert.Equal(t, "pi_1", *got.PaymentReference)
}

func TestFindByID_NotFoundReturnsNil(t *testing.T) {
	db := dbtest.Open(t)
	got, err := Provide().FindByID(context.Background(), db, 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListExpiryCandidates_JoinsValidity(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := Provide()
	now := time.Now().UTC()
	dbtest.SeedPlan(t, db, 20, "asia-5gb-30d", 5, 30)

	activated := now.Add(-31 * 24 * time.Hour)
	active := newOrder(1, 10, 20, orderdomain.OrderStatusActive, now)
	require.NoError(t, repo.Insert(ctx, db, active))
	require.NoError(t, db.Exec(`UPDATE orders SET activated_at = ? WHERE id = ?`, activated, 1).Error)

	// Never activated.
	require.NoError(t, repo.Insert(ctx, db, newOrder(2, 10, 20, orderdomain.OrderStatusCompleted, now)))

	testOrder := newOrder(3, 11, 20, orderdomain.OrderStatusActive, now)
	testOrder.IsTestAccount = true
	require.NoError(t, repo.Insert(ctx, db, testOrder))
	require.NoError(t, db.Exec(`UPDATE orders SET activated_at = ? WHERE id = ?`, activated, 3).Error)

	candidates, err := repo.ListExpiryCandidates(ctx, db, 0, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, snowflake.ID(1), candidates[0].ID)
	assert.Equal(t, 30, candidates[0].ValidityDays)
	require.NotNil(t, candidates[0].ActivatedAt)
}

func TestListMeteringCandidates_ExcludesTopupsAndTestAccounts(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := Provide()
	now := time.Now().UTC()

	for i, o := range []*orderdomain.Order{
		newOrder(1, 10, 20, orderdomain.OrderStatusActive, now),
		newOrder(2, 10, 20, orderdomain.OrderStatusDepleted, now),
		newOrder(3, 10, 20, orderdomain.OrderStatusActive, now),
		newOrder(4, 10, 20, orderdomain.OrderStatusActive, now),
		newOrder(5, 10, 20, orderdomain.OrderStatusExpired, now),
	} {
		switch i {
		case 2:
			o.IsTopup = true
		case 3:
			o.IsTestAccount = true
		}
		require.NoError(t, repo.Insert(ctx, db, o))
		require.NoError(t, db.Exec(`UPDATE orders SET transaction_ref = ? WHERE id = ?`, "tx-"+o.ID.String(), o.ID).Error)
	}

	orders, err := repo.ListMeteringCandidates(ctx, db, 0, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, snowflake.ID(1), orders[0].ID)
	assert.Equal(t, snowflake.ID(2), orders[1].ID)

	orders, err = repo.ListMeteringCandidates(ctx, db, 1, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, snowflake.ID(2), orders[0].ID)
}

func TestListStuckProvisioning_RespectsGraceWindow(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := Provide()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, db, newOrder(1, 10, 20, orderdomain.OrderStatusProvisioning, now)))
	require.NoError(t, repo.Insert(ctx, db, newOrder(2, 10, 20, orderdomain.OrderStatusProvisioning, now)))
	require.NoError(t, db.Exec(`UPDATE orders SET partner_order_ref = 'P-1', provisioning_started_at = ? WHERE id = 1`, now.Add(-15*time.Minute)).Error)
	require.NoError(t, db.Exec(`UPDATE orders SET partner_order_ref = 'P-2', provisioning_started_at = ? WHERE id = 2`, now.Add(-2*time.Minute)).Error)

	orders, err := repo.ListStuckProvisioning(ctx, db, now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, snowflake.ID(1), orders[0].ID)

	got, err := repo.FindByPartnerOrderRef(ctx, db, "P-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snowflake.ID(2), got.ID)
}

func TestListCompletedTopUps_OnlyCountsLandedCapacity(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := Provide()
	now := time.Now().UTC()
	parentID := snowflake.ID(1)

	require.NoError(t, repo.Insert(ctx, db, newOrder(1, 10, 20, orderdomain.OrderStatusDepleted, now)))
	for _, o := range []*orderdomain.Order{
		newOrder(2, 10, 21, orderdomain.OrderStatusCompleted, now),
		newOrder(3, 10, 21, orderdomain.OrderStatusProvisioning, now),
		newOrder(4, 10, 21, orderdomain.OrderStatusCompleted, now),
	} {
		o.IsTopup = true
		o.ParentOrderID = &parentID
		require.NoError(t, repo.Insert(ctx, db, o))
	}
	// Completed but attached to another parent.
	other := newOrder(5, 10, 21, orderdomain.OrderStatusCompleted, now)
	otherParent := snowflake.ID(99)
	other.IsTopup = true
	other.ParentOrderID = &otherParent
	require.NoError(t, repo.Insert(ctx, db, other))

	orders, err := repo.ListCompletedTopUps(ctx, db, parentID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, snowflake.ID(2), orders[0].ID)
	assert.Equal(t, snowflake.ID(4), orders[1].ID)
}
