package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountrepo "github.com/smallbiznis/simcore/internal/account/repository"
	accountservice "github.com/smallbiznis/simcore/internal/account/service"
	"github.com/smallbiznis/simcore/internal/clock"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/order/repository"
	planrepo "github.com/smallbiznis/simcore/internal/plan/repository"
	planservice "github.com/smallbiznis/simcore/internal/plan/service"
	"github.com/smallbiznis/simcore/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordedEffect struct {
	orderID snowflake.ID
	step    orderdomain.Transition
}

type recordingEffects struct {
	calls []recordedEffect
}

func (r *recordingEffects) OnTransition(ctx context.Context, order orderdomain.Order, step orderdomain.Transition) {
	r.calls = append(r.calls, recordedEffect{orderID: order.ID, step: step})
}

// racingRepo lets another writer move the order between load and write.
type racingRepo struct {
	orderdomain.Repository
	moveTo orderdomain.OrderStatus
}

func (r *racingRepo) CompareAndSwap(ctx context.Context, db *gorm.DB, id snowflake.ID, expected orderdomain.OrderStatus, fields map[string]any) (bool, error) {
	if r.moveTo != "" {
		if err := db.Exec(`UPDATE orders SET status = ? WHERE id = ?`, r.moveTo, id).Error; err != nil {
			return false, err
		}
		r.moveTo = ""
	}
	return r.Repository.CompareAndSwap(ctx, db, id, expected, fields)
}

type fixture struct {
	db      *gorm.DB
	svc     orderdomain.Service
	effects *recordingEffects
	clock   *clock.FakeClock
	node    *snowflake.Node
}

func newFixture(t *testing.T, repo orderdomain.Repository) fixture {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.SeedUser(t, db, 100, "buyer@example.com", false)
	dbtest.SeedUser(t, db, 200, "qa@example.com", true)
	dbtest.SeedPlan(t, db, 10, "eu-3gb-30d", 3, 30)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	if repo == nil {
		repo = repository.Provide()
	}
	log := zap.NewNop()
	fx := fixture{
		db:      db,
		effects: &recordingEffects{},
		clock:   clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)),
		node:    node,
	}
	fx.svc = NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fx.clock,
		Repo:     repo,
		Accounts: accountservice.New(accountservice.Params{DB: db, Log: log, Repo: accountrepo.Provide()}),
		Plans:    planservice.New(planservice.Params{DB: db, Log: log, Repo: planrepo.Provide()}),
		Effects:  fx.effects,
	})
	return fx
}

func paymentEvent(ref string) orderdomain.Event {
	return orderdomain.Event{
		Type: orderdomain.EventPaymentCaptured,
		Payment: &orderdomain.PaymentFacts{
			Provider:  "stripe",
			Reference: ref,
			Amount:    1000,
			Currency:  "USD",
		},
	}
}

func TestCreate_PendingOrderFromPlan(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	order, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 200, PlanID: 10})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(1000), order.Amount)
	assert.True(t, order.IsTestAccount)
	assert.False(t, order.IsTopup)

	stored, err := fx.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.True(t, stored.IsTestAccount)
}

func TestCreate_TopupNeedsUsableParent(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	parent, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10})
	require.NoError(t, err)

	_, err = fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10, ParentOrderID: &parent.ID})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidOrder)

	require.NoError(t, fx.db.Exec(`UPDATE orders SET status = 'active' WHERE id = ?`, parent.ID).Error)
	topup, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10, ParentOrderID: &parent.ID})
	require.NoError(t, err)
	assert.True(t, topup.IsTopup)

	_, err = fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 200, PlanID: 10, ParentOrderID: &parent.ID})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidOrder)
}

func TestApply_SequenceCommitsEveryStep(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	order, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10})
	require.NoError(t, err)

	res, err := fx.svc.Apply(ctx, order.ID, paymentEvent("pi_1"))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = fx.svc.Apply(ctx, order.ID,
		orderdomain.Event{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: "P-100"},
		orderdomain.Event{Type: orderdomain.EventProvisioningCompleted, Activation: &orderdomain.ActivationDetails{
			ICCID:          "8988",
			TransactionRef: "TX-1",
			SMDPAddress:    "smdp.example.com",
			ActivationCode: "ABC123",
		}},
	)
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, orderdomain.OrderStatusCompleted, res.Order.Status)

	stored, err := fx.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusCompleted, stored.Status)
	require.NotNil(t, stored.PartnerOrderRef)
	assert.Equal(t, "P-100", *stored.PartnerOrderRef)
	require.NotNil(t, stored.TransactionRef)
	assert.Equal(t, "TX-1", *stored.TransactionRef)

	require.Len(t, fx.effects.calls, 3)
	assert.Equal(t, orderdomain.OrderStatusPaid, fx.effects.calls[0].step.To)
	assert.Equal(t, orderdomain.OrderStatusCompleted, fx.effects.calls[2].step.To)
}

func TestApply_RejectedStepKeepsEarlierSteps(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	order, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10})
	require.NoError(t, err)
	_, err = fx.svc.Apply(ctx, order.ID, paymentEvent("pi_2"))
	require.NoError(t, err)

	res, err := fx.svc.Apply(ctx, order.ID,
		orderdomain.Event{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: "P-200"},
		orderdomain.Event{Type: orderdomain.EventProvisioningCompleted, Activation: &orderdomain.ActivationDetails{SMDPAddress: "smdp.example.com"}},
	)
	assert.ErrorIs(t, err, orderdomain.ErrIncompleteActivation)
	assert.Len(t, res.Steps, 1)

	stored, err := fx.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusProvisioning, stored.Status)
}

func TestApply_LateCompletionOnRefundedOrderIsRejected(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	order, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10})
	require.NoError(t, err)
	_, err = fx.svc.Apply(ctx, order.ID, paymentEvent("pi_3"),
		orderdomain.Event{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: "P-300"},
		orderdomain.Event{Type: orderdomain.EventOrderRefunded, Actor: "ops"},
	)
	require.NoError(t, err)

	before := len(fx.effects.calls)
	res, err := fx.svc.Apply(ctx, order.ID, orderdomain.Event{
		Type:       orderdomain.EventProvisioningCompleted,
		Activation: &orderdomain.ActivationDetails{SMDPAddress: "smdp.example.com", ActivationCode: "ABC123"},
	})
	assert.ErrorIs(t, err, orderdomain.ErrIllegalTransition)
	assert.False(t, res.Applied)
	assert.Equal(t, before, len(fx.effects.calls))

	stored, err := fx.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusRefunded, stored.Status)
	assert.Nil(t, stored.ActivationCode)
	assert.Nil(t, stored.SMDPAddress)
}

func TestApply_LostRaceIsSilentNoop(t *testing.T) {
	racing := &racingRepo{Repository: repository.Provide()}
	fx := newFixture(t, racing)
	ctx := context.Background()

	order, err := fx.svc.Create(ctx, orderdomain.CreateOrderRequest{UserID: 100, PlanID: 10})
	require.NoError(t, err)

	racing.moveTo = orderdomain.OrderStatusFailed
	res, err := fx.svc.Apply(ctx, order.ID, paymentEvent("pi_4"))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, fx.effects.calls)

	stored, err := fx.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusFailed, stored.Status)
	assert.Nil(t, stored.PaymentReference)
}

func TestApply_UnknownOrder(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.svc.Apply(context.Background(), 12345, paymentEvent("pi_x"))
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)

	_, err = fx.svc.Apply(context.Background(), 12345)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidOrder)
}
