package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/clock"
	"github.com/smallbiznis/simcore/internal/config"
	ledgerdomain "github.com/smallbiznis/simcore/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	commissionBps int64
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ledger.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		commissionBps: p.Cfg.CommissionBps,
	}
}

func (s *Service) Accrue(ctx context.Context, orderID snowflake.ID, orderAmount int64, currency string) error {
	if orderID == 0 {
		return ledgerdomain.ErrInvalidOrder
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if orderAmount < 0 {
		return ledgerdomain.ErrInvalidAmount
	}

	amount := orderAmount * s.commissionBps / 10_000
	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO commission_entries (id, order_id, kind, amount, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id, kind) DO NOTHING`,
		s.genID.Generate(),
		orderID,
		ledgerdomain.CommissionKindAccrue,
		amount,
		currency,
		s.now(),
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("commission accrued",
			zap.String("order_id", orderID.String()),
			zap.Int64("amount", amount),
			zap.String("currency", currency),
		)
	}
	return nil
}

func (s *Service) Void(ctx context.Context, orderID snowflake.ID) error {
	if orderID == 0 {
		return ledgerdomain.ErrInvalidOrder
	}

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO commission_entries (id, order_id, kind, amount, currency, created_at)
		 SELECT ?, order_id, ?, amount, currency, ?
		 FROM commission_entries
		 WHERE order_id = ? AND kind = ?
		 ON CONFLICT (order_id, kind) DO NOTHING`,
		s.genID.Generate(),
		ledgerdomain.CommissionKindVoid,
		s.now(),
		orderID,
		ledgerdomain.CommissionKindAccrue,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("commission voided", zap.String("order_id", orderID.String()))
	}
	return nil
}

func (s *Service) CreditedBytes(ctx context.Context, orderID snowflake.ID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(bytes), 0) FROM bonus_credits WHERE order_id = ?`,
		orderID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
