package provisioning

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	ordermocks "github.com/smallbiznis/simcore/internal/order/domain/mocks"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"github.com/smallbiznis/simcore/internal/providers/provisioning"
	provmocks "github.com/smallbiznis/simcore/internal/providers/provisioning/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPlans struct{}

func (stubPlans) Get(_ context.Context, id snowflake.ID) (*plandomain.Plan, error) {
	return &plandomain.Plan{ID: id, SKU: "ID-3GB-30D", ValidityDays: 30}, nil
}

func (stubPlans) GetBySKU(context.Context, string) (*plandomain.Plan, error) {
	return nil, plandomain.ErrPlanNotFound
}

type stubVerifier struct {
	isTest bool
	calls  int
}

func (v *stubVerifier) Verify(context.Context, snowflake.ID) (bool, error) {
	v.calls++
	return v.isTest, nil
}

type fixture struct {
	svc      *Service
	orders   *ordermocks.MockService
	client   *provmocks.MockClient
	verifier *stubVerifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := fixture{
		orders:   ordermocks.NewMockService(ctrl),
		client:   provmocks.NewMockClient(ctrl),
		verifier: &stubVerifier{},
	}
	f.svc = NewService(Params{
		Log:      zap.NewNop(),
		Orders:   f.orders,
		Plans:    stubPlans{},
		Client:   f.client,
		Verifier: f.verifier,
	})
	return f
}

func paidOrder() orderdomain.Order {
	return orderdomain.Order{ID: 1001, UserID: 5, PlanID: 9, Status: orderdomain.OrderStatusPaid}
}

func stuckOrder() orderdomain.Order {
	ref := "PO-77"
	return orderdomain.Order{ID: 1002, UserID: 5, PlanID: 9, Status: orderdomain.OrderStatusProvisioning, PartnerOrderRef: &ref}
}

func applied(steps ...orderdomain.OrderStatus) orderdomain.TransitionResult {
	res := orderdomain.TransitionResult{Applied: len(steps) > 0}
	for _, to := range steps {
		res.Steps = append(res.Steps, orderdomain.Transition{To: to})
	}
	return res
}

func TestProvision_SynchronousActivationCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.EXPECT().CreateOrder(gomock.Any(), "ID-3GB-30D", "1001").Return(provisioning.CreateOrderResult{
		PartnerOrderID:   "PO-1",
		Status:           provisioning.StatusCompleted,
		ActivationString: "LPA:1$smdp.example.com$ABC123",
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1001),
		orderdomain.Event{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: "PO-1"},
		orderdomain.Event{Type: orderdomain.EventProvisioningCompleted, Activation: &orderdomain.ActivationDetails{
			SMDPAddress:    "smdp.example.com",
			ActivationCode: "ABC123",
		}},
	).Return(applied(orderdomain.OrderStatusProvisioning, orderdomain.OrderStatusCompleted), nil)

	outcome, err := f.svc.Provision(ctx, paidOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestProvision_AsyncPartnerOnlyAccepts(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), "1001").Return(provisioning.CreateOrderResult{
		PartnerOrderID: "PO-2",
		Status:         provisioning.StatusProcessing,
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1001),
		orderdomain.Event{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: "PO-2"},
	).Return(applied(orderdomain.OrderStatusProvisioning), nil)

	outcome, err := f.svc.Provision(context.Background(), paidOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
}

func TestProvision_TimeoutLeavesOrderPaid(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any()).Return(provisioning.CreateOrderResult{}, orderdomain.ErrPartnerTimeout)

	outcome, err := f.svc.Provision(context.Background(), paidOrder())
	assert.ErrorIs(t, err, orderdomain.ErrPartnerTimeout)
	assert.Equal(t, OutcomeDeferred, outcome)
}

func TestProvision_RejectionFailsOrder(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any()).Return(provisioning.CreateOrderResult{}, orderdomain.ErrPartnerRejected)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1001), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ snowflake.ID, events ...orderdomain.Event) (orderdomain.TransitionResult, error) {
			require.Len(t, events, 1)
			assert.Equal(t, orderdomain.EventProvisioningFailed, events[0].Type)
			assert.NotEmpty(t, events[0].FailureReason)
			return applied(orderdomain.OrderStatusFailed), nil
		})

	outcome, err := f.svc.Provision(context.Background(), paidOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestProvision_TestAccountSkipsPartner(t *testing.T) {
	f := newFixture(t)
	f.verifier.isTest = true

	outcome, err := f.svc.Provision(context.Background(), paidOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 1, f.verifier.calls)
}

func TestProvision_IgnoresNonPaidOrders(t *testing.T) {
	f := newFixture(t)
	order := paidOrder()
	order.Status = orderdomain.OrderStatusCompleted

	outcome, err := f.svc.Provision(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Zero(t, f.verifier.calls)
}

func TestRecover_CompleteActivationString(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().GetOrderStatus(gomock.Any(), "PO-77").Return(provisioning.OrderStatusResult{
		Status: provisioning.StatusCompleted,
		Profiles: []provisioning.Profile{
			{TransactionRef: "TX-0", ProfileID: "8900000000000000000", ActivationString: "1$smdp.example.com"},
			{TransactionRef: "TX-1", ProfileID: "8901234567890123456", ActivationString: "1$smdp.example.com$ABC123", QRCodeURL: "https://qr.example.com/1"},
		},
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1002),
		orderdomain.Event{Type: orderdomain.EventProvisioningCompleted, Activation: &orderdomain.ActivationDetails{
			ICCID:          "8901234567890123456",
			TransactionRef: "TX-1",
			SMDPAddress:    "smdp.example.com",
			ActivationCode: "ABC123",
			InstallURL:     "https://qr.example.com/1",
		}},
	).Return(applied(orderdomain.OrderStatusCompleted), nil)

	outcome, err := f.svc.Recover(context.Background(), stuckOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestRecover_IncompleteActivationStaysProvisioning(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().GetOrderStatus(gomock.Any(), "PO-77").Return(provisioning.OrderStatusResult{
		Status:   provisioning.StatusProcessing,
		Profiles: []provisioning.Profile{{TransactionRef: "TX-1", ActivationString: "1$smdp.example.com"}},
	}, nil)

	outcome, err := f.svc.Recover(context.Background(), stuckOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
}

func TestRecover_ExplicitFailure(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().GetOrderStatus(gomock.Any(), "PO-77").Return(provisioning.OrderStatusResult{
		Status:        provisioning.StatusFailed,
		FailureReason: "out_of_stock",
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1002),
		orderdomain.Event{Type: orderdomain.EventProvisioningFailed, FailureReason: "out_of_stock"},
	).Return(applied(orderdomain.OrderStatusFailed), nil)

	outcome, err := f.svc.Recover(context.Background(), stuckOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestRecover_InstalledProfileAlsoActivates(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().GetOrderStatus(gomock.Any(), "PO-77").Return(provisioning.OrderStatusResult{
		Status: provisioning.StatusCompleted,
		Profiles: []provisioning.Profile{
			{TransactionRef: "TX-1", ProfileID: "8901", ActivationString: "1$smdp.example.com$ABC123", Installed: true},
		},
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1002), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ snowflake.ID, events ...orderdomain.Event) (orderdomain.TransitionResult, error) {
			require.Len(t, events, 2)
			assert.Equal(t, orderdomain.EventProfileActivated, events[1].Type)
			assert.Equal(t, orderdomain.ActivationSourcePartnerEvent, events[1].ActivationSource)
			return applied(orderdomain.OrderStatusCompleted, orderdomain.OrderStatusActive), nil
		})

	outcome, err := f.svc.Recover(context.Background(), stuckOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestRecover_PartnerTimeoutDefers(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().GetOrderStatus(gomock.Any(), "PO-77").Return(provisioning.OrderStatusResult{}, orderdomain.ErrPartnerTimeout)

	outcome, err := f.svc.Recover(context.Background(), stuckOrder())
	assert.ErrorIs(t, err, orderdomain.ErrPartnerTimeout)
	assert.Equal(t, OutcomeDeferred, outcome)
}

func topUpOrder() orderdomain.Order {
	parentID := snowflake.ID(900)
	return orderdomain.Order{ID: 1003, UserID: 5, PlanID: 9, Status: orderdomain.OrderStatusPaid, IsTopup: true, ParentOrderID: &parentID}
}

func parentOrder(status orderdomain.OrderStatus, transactionRef string) *orderdomain.Order {
	parent := &orderdomain.Order{ID: 900, UserID: 5, PlanID: 9, Status: status}
	if transactionRef != "" {
		parent.TransactionRef = &transactionRef
	}
	return parent
}

func TestProvision_TopUpTargetsParentProfile(t *testing.T) {
	f := newFixture(t)

	f.orders.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).Return(parentOrder(orderdomain.OrderStatusDepleted, "TX-900"), nil)
	f.client.EXPECT().TopUp(gomock.Any(), "TX-900", "ID-3GB-30D", "1003").Return(provisioning.TopUpResult{
		PartnerOrderID: "T-1",
		Status:         provisioning.StatusCompleted,
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1003),
		orderdomain.Event{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: "T-1"},
		orderdomain.Event{Type: orderdomain.EventProvisioningCompleted},
	).Return(applied(orderdomain.OrderStatusProvisioning, orderdomain.OrderStatusCompleted), nil)

	outcome, err := f.svc.Provision(context.Background(), topUpOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestProvision_TopUpWaitsForParentProfile(t *testing.T) {
	for name, parent := range map[string]*orderdomain.Order{
		"parent still provisioning": parentOrder(orderdomain.OrderStatusProvisioning, ""),
		"parent without profile":    parentOrder(orderdomain.OrderStatusCompleted, ""),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).Return(parent, nil)

			outcome, err := f.svc.Provision(context.Background(), topUpOrder())
			assert.ErrorIs(t, err, ErrParentNotReady)
			assert.Equal(t, OutcomeDeferred, outcome)
		})
	}
}

func TestProvision_TopUpOnRefundedParentFails(t *testing.T) {
	f := newFixture(t)

	f.orders.EXPECT().GetByID(gomock.Any(), snowflake.ID(900)).Return(parentOrder(orderdomain.OrderStatusRefunded, "TX-900"), nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1003), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ snowflake.ID, events ...orderdomain.Event) (orderdomain.TransitionResult, error) {
			require.Len(t, events, 1)
			assert.Equal(t, orderdomain.EventProvisioningFailed, events[0].Type)
			assert.Equal(t, "parent profile is refunded", events[0].FailureReason)
			return applied(orderdomain.OrderStatusFailed), nil
		})

	outcome, err := f.svc.Provision(context.Background(), topUpOrder())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestRecover_TopUpCompletesWithoutInstallData(t *testing.T) {
	f := newFixture(t)
	order := topUpOrder()
	ref := "T-1"
	order.Status = orderdomain.OrderStatusProvisioning
	order.PartnerOrderRef = &ref

	f.client.EXPECT().GetOrderStatus(gomock.Any(), "T-1").Return(provisioning.OrderStatusResult{
		Status: provisioning.StatusCompleted,
	}, nil)
	f.orders.EXPECT().Apply(gomock.Any(), snowflake.ID(1003),
		orderdomain.Event{Type: orderdomain.EventProvisioningCompleted},
	).Return(applied(orderdomain.OrderStatusCompleted), nil)

	outcome, err := f.svc.Recover(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}
