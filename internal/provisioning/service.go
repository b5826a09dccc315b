// Package provisioning issues partner orders for paid orders and recovers
// orders whose partner result never arrived. Notification intake, reconcile
// jobs and the order read path all go through it.
package provisioning

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"github.com/smallbiznis/simcore/internal/providers/provisioning"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Outcome summarizes what one provisioning attempt did.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNoop      Outcome = "noop"
)

// ErrParentNotReady defers a top-up whose parent has no partner profile yet.
var ErrParentNotReady = errors.New("parent_profile_not_ready")

// TestAccountVerifier re-reads the test flag from the account store.
type TestAccountVerifier interface {
	Verify(ctx context.Context, userID snowflake.ID) (bool, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Orders   orderdomain.Service
	Plans    plandomain.Service
	Client   provisioning.Client
	Verifier TestAccountVerifier
	Metrics  *obsmetrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	orders   orderdomain.Service
	plans    plandomain.Service
	client   provisioning.Client
	verifier TestAccountVerifier
	metrics  *obsmetrics.ReconcileMetrics
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("provisioning.service"),
		orders:   p.Orders,
		plans:    p.Plans,
		client:   p.Client,
		verifier: p.Verifier,
		metrics:  p.Metrics,
	}
}

// Provision requests a profile for a paid order. The order id is the
// partner idempotency key, so retries after a lost response are safe.
// Timeouts and partner outages leave the order in paid and return the
// error as OutcomeDeferred.
func (s *Service) Provision(ctx context.Context, order orderdomain.Order) (Outcome, error) {
	if order.Status != orderdomain.OrderStatusPaid {
		return OutcomeNoop, nil
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), order.ID.String())

	isTest, err := s.verifier.Verify(ctx, order.UserID)
	if err != nil {
		return OutcomeDeferred, err
	}
	if isTest {
		log.Info("test account, partner order skipped")
		return OutcomeSkipped, nil
	}

	plan, err := s.plans.Get(ctx, order.PlanID)
	if err != nil {
		return OutcomeDeferred, err
	}
	if order.IsTopup {
		return s.provisionTopUp(ctx, log, order, plan.SKU)
	}

	res, err := s.client.CreateOrder(ctx, plan.SKU, order.ID.String())
	if err != nil {
		s.metrics.IncPartnerError("provisioning", err)
		if errors.Is(err, orderdomain.ErrPartnerRejected) {
			return s.fail(ctx, order.ID, err.Error())
		}
		log.Warn("create partner order deferred", zap.Error(err))
		return OutcomeDeferred, err
	}

	if res.Status == provisioning.StatusFailed {
		return s.fail(ctx, order.ID, "partner reported failure on create")
	}

	events := []orderdomain.Event{{
		Type:            orderdomain.EventProvisioningAccepted,
		PartnerOrderRef: res.PartnerOrderID,
	}}
	if details, ok := syncActivation(res); ok {
		events = append(events, orderdomain.Event{
			Type:       orderdomain.EventProvisioningCompleted,
			Activation: &details,
		})
	}
	return s.apply(ctx, order.ID, events...)
}

// provisionTopUp adds the top-up allowance to the parent's profile. The
// top-up completes without install data of its own.
func (s *Service) provisionTopUp(ctx context.Context, log *zap.Logger, order orderdomain.Order, sku string) (Outcome, error) {
	if order.ParentOrderID == nil {
		return s.fail(ctx, order.ID, "top-up without parent order")
	}
	parent, err := s.orders.GetByID(ctx, *order.ParentOrderID)
	if err != nil {
		return OutcomeDeferred, err
	}
	switch parent.Status {
	case orderdomain.OrderStatusCompleted, orderdomain.OrderStatusActive, orderdomain.OrderStatusDepleted:
	case orderdomain.OrderStatusPaid, orderdomain.OrderStatusProvisioning:
		return OutcomeDeferred, ErrParentNotReady
	default:
		return s.fail(ctx, order.ID, "parent profile is "+string(parent.Status))
	}
	if parent.TransactionRef == nil || strings.TrimSpace(*parent.TransactionRef) == "" {
		return OutcomeDeferred, ErrParentNotReady
	}

	res, err := s.client.TopUp(ctx, *parent.TransactionRef, sku, order.ID.String())
	if err != nil {
		s.metrics.IncPartnerError("provisioning", err)
		if errors.Is(err, orderdomain.ErrPartnerRejected) {
			return s.fail(ctx, order.ID, err.Error())
		}
		log.Warn("partner top-up deferred", zap.Error(err))
		return OutcomeDeferred, err
	}
	if res.Status == provisioning.StatusFailed {
		return s.fail(ctx, order.ID, "partner reported failure on top-up")
	}

	events := []orderdomain.Event{{
		Type:            orderdomain.EventProvisioningAccepted,
		PartnerOrderRef: res.PartnerOrderID,
	}}
	if res.Status == provisioning.StatusCompleted {
		events = append(events, orderdomain.Event{Type: orderdomain.EventProvisioningCompleted})
	}
	log.Info("top-up issued",
		zap.String("parent_order_id", parent.ID.String()),
		zap.String("partner_status", string(res.Status)),
	)
	return s.apply(ctx, order.ID, events...)
}

// Recover re-polls the partner for an order stuck in provisioning. An
// incomplete activation string leaves the order where it is; only an
// explicit failed status moves it to failed.
func (s *Service) Recover(ctx context.Context, order orderdomain.Order) (Outcome, error) {
	if order.Status != orderdomain.OrderStatusProvisioning || order.PartnerOrderRef == nil {
		return OutcomeNoop, nil
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), order.ID.String())

	isTest, err := s.verifier.Verify(ctx, order.UserID)
	if err != nil {
		return OutcomeDeferred, err
	}
	if isTest {
		return OutcomeSkipped, nil
	}

	status, err := s.client.GetOrderStatus(ctx, *order.PartnerOrderRef)
	if err != nil {
		s.metrics.IncPartnerError("provisioning", err)
		log.Warn("partner order status unavailable", zap.Error(err))
		return OutcomeDeferred, err
	}

	if order.IsTopup && status.Status == provisioning.StatusCompleted {
		return s.apply(ctx, order.ID, orderdomain.Event{Type: orderdomain.EventProvisioningCompleted})
	}
	if profile, details, ok := status.FirstComplete(); ok && !order.IsTopup {
		events := []orderdomain.Event{{
			Type:       orderdomain.EventProvisioningCompleted,
			Activation: &details,
		}}
		if profile.Installed {
			events = append(events, orderdomain.Event{
				Type:             orderdomain.EventProfileActivated,
				ActivationSource: orderdomain.ActivationSourcePartnerEvent,
			})
		}
		return s.apply(ctx, order.ID, events...)
	}

	if status.Status == provisioning.StatusFailed {
		reason := strings.TrimSpace(status.FailureReason)
		if reason == "" {
			reason = "partner reported failure"
		}
		return s.fail(ctx, order.ID, reason)
	}

	log.Debug("activation details still incomplete", zap.Int("profiles", len(status.Profiles)))
	return OutcomePending, nil
}

func (s *Service) fail(ctx context.Context, orderID snowflake.ID, reason string) (Outcome, error) {
	res, err := s.orders.Apply(ctx, orderID, orderdomain.Event{
		Type:          orderdomain.EventProvisioningFailed,
		FailureReason: reason,
	})
	if err != nil {
		return OutcomeNoop, err
	}
	if !res.Applied {
		return OutcomeNoop, nil
	}
	return OutcomeFailed, nil
}

func (s *Service) apply(ctx context.Context, orderID snowflake.ID, events ...orderdomain.Event) (Outcome, error) {
	res, err := s.orders.Apply(ctx, orderID, events...)
	outcome := OutcomeNoop
	if res.Applied {
		outcome = OutcomeAccepted
		for _, step := range res.Steps {
			if step.To == orderdomain.OrderStatusCompleted {
				outcome = OutcomeCompleted
			}
		}
	}
	return outcome, err
}

// syncActivation extracts install data when the partner provisioned inline.
func syncActivation(res provisioning.CreateOrderResult) (orderdomain.ActivationDetails, bool) {
	if res.Profile != nil {
		if details, err := res.Profile.ActivationDetails(); err == nil {
			return details, true
		}
	}
	if res.ActivationString == "" {
		return orderdomain.ActivationDetails{}, false
	}
	parsed, err := provisioning.ParseActivationString(res.ActivationString)
	if err != nil {
		return orderdomain.ActivationDetails{}, false
	}
	return orderdomain.ActivationDetails{
		SMDPAddress:    parsed.SMDPAddress,
		ActivationCode: parsed.MatchingID,
	}, true
}
