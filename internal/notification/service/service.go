// Package service is the notification intake pipeline: rate limit, verify,
// parse, gate, then drive the order lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	idemdomain "github.com/smallbiznis/simcore/internal/idempotency/domain"
	"github.com/smallbiznis/simcore/internal/notification/adapters"
	"github.com/smallbiznis/simcore/internal/notification/domain"
	obscontext "github.com/smallbiznis/simcore/internal/observability/context"
	obslogger "github.com/smallbiznis/simcore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	"github.com/smallbiznis/simcore/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/provisioning"
	"github.com/smallbiznis/simcore/internal/ratelimit"
	"github.com/smallbiznis/simcore/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "simcore/notification"

// Limiter admits or rejects one notification for a (source, client) pair.
type Limiter interface {
	Allow(ctx context.Context, source, clientID string) (ratelimit.WindowResult, error)
}

// Provisioner issues the partner order once payment is captured.
type Provisioner interface {
	Provision(ctx context.Context, order orderdomain.Order) (provisioning.Outcome, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Registry    *adapters.Registry
	Gate        idemdomain.Gate
	Orders      orderdomain.Service
	Repo        orderdomain.Repository
	Provisioner Provisioner

	Limiter Limiter             `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	registry    *adapters.Registry
	gate        idemdomain.Gate
	orders      orderdomain.Service
	repo        orderdomain.Repository
	provisioner Provisioner
	limiter     Limiter
	metrics     *obsmetrics.Metrics
	validate    *validator.Validate
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("notification.service"),
		registry:    p.Registry,
		gate:        p.Gate,
		orders:      p.Orders,
		repo:        p.Repo,
		provisioner: p.Provisioner,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
		validate:    validator.New(),
	}
}

// Ingest processes one inbound notification. Once the payload has been
// verified and parsed the notification is acknowledged whatever its effect,
// except when processing failed on infrastructure: then ErrProcessingFailed
// is returned so the sender redelivers, and the gate readmits it.
func (s *Service) Ingest(ctx context.Context, source, clientID string, payload []byte, headers http.Header) (result domain.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "notification.ingest",
		attribute.String("notification.source", source),
	)
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
		}
		span.End()
	}()

	adapter, err := s.registry.Get(source)
	if err != nil {
		return domain.Result{}, err
	}
	source = adapter.Source()

	if s.limiter != nil {
		res, err := s.limiter.Allow(ctx, source, clientID)
		if err != nil {
			s.log.Error("intake limiter unavailable", zap.String("source", source), zap.Error(err))
			return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrLimiterUnavailable, err)
		}
		if !res.Allowed {
			s.metrics.RecordRateLimitDenied(ctx, source)
			return domain.Result{}, &domain.RateLimitError{RetryAfter: res.RetryAfter}
		}
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.RecordNotification(ctx, source, "rejected")
		return domain.Result{}, err
	}
	n, err := adapter.Parse(ctx, payload)
	if err != nil {
		s.metrics.RecordNotification(ctx, source, "unparseable")
		return domain.Result{}, err
	}
	if err := s.check(n); err != nil {
		s.metrics.RecordNotification(ctx, source, "unparseable")
		return domain.Result{}, err
	}

	ctx = obscontext.WithCorrelationID(ctx, correlation.NewID())
	ctx = obscontext.WithActor(ctx, "notification", source)
	log := obslogger.WithNotification(obslogger.WithContext(ctx, s.log), n.Source, n.NotificationID).
		With(zap.String("event_type", n.EventType))

	admission, receipt, err := s.gate.Admit(ctx, idemdomain.AdmitRequest{
		Source:         n.Source,
		NotificationID: n.NotificationID,
		EventType:      n.EventType,
		OrderID:        n.OrderID,
		Payload:        n.Payload,
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("admit notification: %w", err)
	}
	if admission == idemdomain.Duplicate {
		s.metrics.RecordNotification(ctx, source, string(idemdomain.Duplicate))
		log.Info("duplicate notification acknowledged")
		return domain.Result{Admission: string(admission), Outcome: string(receipt.Outcome), OrderID: receipt.OrderID}, nil
	}

	outcome, orderID := s.process(ctx, log, n)
	if err := s.gate.Classify(ctx, receipt.ID, outcome, orderID); err != nil {
		log.Error("classify receipt failed", zap.Error(err))
	}
	s.metrics.RecordNotification(ctx, source, string(outcome))
	result = domain.Result{Admission: string(admission), Outcome: string(outcome), OrderID: orderID}
	if outcome == idemdomain.OutcomeError {
		return result, domain.ErrProcessingFailed
	}
	return result, nil
}

func (s *Service) check(n *domain.Notification) error {
	if err := s.validate.Struct(n); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if n.Event != nil && n.OrderID == nil && n.PartnerOrderRef == "" && n.TransactionRef == "" {
		return fmt.Errorf("%w: no order reference", domain.ErrInvalidPayload)
	}
	return nil
}

func (s *Service) process(ctx context.Context, log *zap.Logger, n *domain.Notification) (idemdomain.Outcome, *snowflake.ID) {
	if n.Ignored() {
		log.Debug("notification carries no lifecycle event")
		return idemdomain.OutcomeIgnored, n.OrderID
	}

	order, err := s.resolve(ctx, n)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Warn("notification order not found",
				zap.String("partner_order_ref", n.PartnerOrderRef),
				zap.String("transaction_ref", n.TransactionRef),
			)
			return idemdomain.OutcomeIgnored, n.OrderID
		}
		log.Error("resolve notification order failed", zap.Error(err))
		return idemdomain.OutcomeError, n.OrderID
	}
	orderID := order.ID
	log = obslogger.WithOrder(log, orderID.String())

	events := s.eventsFor(order, *n.Event)
	res, err := s.orders.Apply(ctx, order.ID, events...)
	if err != nil {
		if rejected(err) {
			log.Warn("notification rejected by order lifecycle",
				zap.String("status", string(order.Status)),
				zap.Error(err),
			)
			return idemdomain.OutcomeIllegalTransition, &orderID
		}
		log.Error("apply notification failed", zap.Error(err))
		return idemdomain.OutcomeError, &orderID
	}
	if !res.Applied {
		return idemdomain.OutcomeNoop, &orderID
	}

	if res.Order.Status == orderdomain.OrderStatusPaid && s.provisioner != nil {
		outcome, err := s.provisioner.Provision(ctx, res.Order)
		if err != nil {
			log.Warn("provisioning deferred to reconcile", zap.String("outcome", string(outcome)), zap.Error(err))
		} else {
			log.Info("provisioning issued", zap.String("outcome", string(outcome)))
		}
	}
	return idemdomain.OutcomeApplied, &orderID
}

// eventsFor records partner acceptance first when a completion push beats
// the synchronous createOrder answer.
func (s *Service) eventsFor(order *orderdomain.Order, event orderdomain.Event) []orderdomain.Event {
	if order.Status == orderdomain.OrderStatusPaid &&
		event.Type == orderdomain.EventProvisioningCompleted &&
		event.PartnerOrderRef != "" {
		return []orderdomain.Event{
			{Type: orderdomain.EventProvisioningAccepted, PartnerOrderRef: event.PartnerOrderRef},
			event,
		}
	}
	return []orderdomain.Event{event}
}

func (s *Service) resolve(ctx context.Context, n *domain.Notification) (*orderdomain.Order, error) {
	var (
		order *orderdomain.Order
		err   error
	)
	switch {
	case n.OrderID != nil:
		order, err = s.repo.FindByID(ctx, s.db, *n.OrderID)
	case n.PartnerOrderRef != "":
		order, err = s.repo.FindByPartnerOrderRef(ctx, s.db, n.PartnerOrderRef)
	default:
		order, err = s.repo.FindByTransactionRef(ctx, s.db, n.TransactionRef)
	}
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func rejected(err error) bool {
	for _, target := range []error{
		orderdomain.ErrIllegalTransition,
		orderdomain.ErrIncompleteActivation,
		orderdomain.ErrMissingPaymentFacts,
		orderdomain.ErrMissingPartnerRef,
		orderdomain.ErrInvalidUsage,
		orderdomain.ErrInvalidOrder,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
