package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/simcore/internal/account/domain"
	"github.com/smallbiznis/simcore/internal/clock"
	"github.com/smallbiznis/simcore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/order/lifecycle"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     orderdomain.Repository
	Accounts accountdomain.Service
	Plans    plandomain.Service

	Effects          orderdomain.Effects          `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics          `optional:"true"`
	ReconcileMetrics *obsmetrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  orderdomain.Repository

	accounts accountdomain.Service
	plans    plandomain.Service

	effects          orderdomain.Effects
	obsMetrics       *obsmetrics.Metrics
	reconcileMetrics *obsmetrics.ReconcileMetrics
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		accounts: p.Accounts,
		plans:    p.Plans,

		effects:          p.Effects,
		obsMetrics:       p.ObsMetrics,
		reconcileMetrics: p.ReconcileMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.Order, error) {
	if req.UserID == 0 || req.PlanID == 0 {
		return nil, orderdomain.ErrInvalidOrder
	}

	account, err := s.accounts.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	if req.ParentOrderID != nil {
		parent, err := s.repo.FindByID(ctx, s.db, *req.ParentOrderID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.UserID != account.ID || !canTopUp(parent.Status) {
			return nil, orderdomain.ErrInvalidOrder
		}
	}

	now := s.clock.Now().UTC()
	order := orderdomain.Order{
		ID:            s.genID.Generate(),
		UserID:        account.ID,
		PlanID:        plan.ID,
		Status:        orderdomain.OrderStatusPending,
		Amount:        plan.PriceAmount,
		Currency:      plan.Currency,
		IsTopup:       req.ParentOrderID != nil,
		ParentOrderID: req.ParentOrderID,
		IsTestAccount: account.IsTestAccount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return nil, err
	}

	logger.WithOrder(logger.WithContext(ctx, s.log), order.ID.String()).Info("order created",
		zap.String("plan_id", plan.ID.String()),
		zap.Bool("is_topup", order.IsTopup),
		zap.Bool("is_test_account", order.IsTestAccount),
	)
	return &order, nil
}

func (s *Service) GetByID(ctx context.Context, orderID snowflake.ID) (*orderdomain.Order, error) {
	if orderID == 0 {
		return nil, orderdomain.ErrInvalidOrder
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

// Apply plans each event against the order as left by the previous one and
// writes it with a compare-and-swap on the starting status. Steps that
// succeeded before a rejected event stay committed.
func (s *Service) Apply(ctx context.Context, orderID snowflake.ID, events ...orderdomain.Event) (orderdomain.TransitionResult, error) {
	if orderID == 0 || len(events) == 0 {
		return orderdomain.TransitionResult{}, orderdomain.ErrInvalidOrder
	}

	var (
		result  orderdomain.TransitionResult
		stepErr error
		stepEv  orderdomain.EventType
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}

		current := *order
		for _, ev := range events {
			tr, err := lifecycle.Plan(current, ev, s.now())
			if err != nil {
				stepErr, stepEv = err, ev.Type
				break
			}
			ok, err := s.repo.CompareAndSwap(ctx, tx, current.ID, current.Status, tr.Fields)
			if err != nil {
				return err
			}
			if !ok {
				stepErr, stepEv = orderdomain.ErrStoreConflict, ev.Type
				break
			}
			result.Steps = append(result.Steps, tr)
			current = tr.Next
		}
		result.Order = current
		return nil
	})
	if err != nil {
		return orderdomain.TransitionResult{}, err
	}
	result.Applied = len(result.Steps) > 0

	log := logger.WithOrder(logger.WithContext(ctx, s.log), orderID.String())
	for _, step := range result.Steps {
		s.obsMetrics.RecordOrderTransition(ctx, string(step.From), string(step.To))
		s.reconcileMetrics.IncOrderTransition(string(step.From), string(step.To))
		if step.From != step.To {
			log.Info("order transitioned",
				zap.String("event", string(step.Event)),
				zap.String("from", string(step.From)),
				zap.String("to", string(step.To)),
			)
		}
		if s.effects != nil {
			s.effects.OnTransition(ctx, result.Order, step)
		}
	}

	switch {
	case stepErr == nil:
		return result, nil
	case errors.Is(stepErr, orderdomain.ErrStoreConflict):
		log.Debug("order changed concurrently, event dropped", zap.String("event", string(stepEv)))
		return result, nil
	default:
		log.Warn("event rejected",
			zap.String("event", string(stepEv)),
			zap.String("status", string(result.Order.Status)),
			zap.Error(stepErr),
		)
		return result, stepErr
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func canTopUp(status orderdomain.OrderStatus) bool {
	switch status {
	case orderdomain.OrderStatusCompleted, orderdomain.OrderStatusActive, orderdomain.OrderStatusDepleted:
		return true
	default:
		return false
	}
}
