package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/clock"
	idemdomain "github.com/smallbiznis/simcore/internal/idempotency/domain"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	"github.com/smallbiznis/simcore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.ReconcileMetrics
}

func NewService(p Params) idemdomain.Gate {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("idempotency.gate"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Admit(ctx context.Context, req idemdomain.AdmitRequest) (idemdomain.AdmitResult, *idemdomain.Receipt, error) {
	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		return "", nil, idemdomain.ErrInvalidSource
	}
	notificationID := strings.TrimSpace(req.NotificationID)
	if notificationID == "" {
		return "", nil, idemdomain.ErrInvalidNotificationID
	}

	receipt := idemdomain.Receipt{
		ID:             s.genID.Generate(),
		Source:         source,
		NotificationID: notificationID,
		EventType:      strings.TrimSpace(req.EventType),
		OrderID:        req.OrderID,
		Outcome:        idemdomain.OutcomePending,
		Payload:        normalizePayload(req.Payload),
		ReceivedAt:     s.now(),
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "notification_id"}},
			DoNothing: true,
		}).
		Create(&receipt)
	if result.Error != nil && !db.IsDuplicateKeyErr(result.Error) {
		return "", nil, result.Error
	}
	if result.Error == nil && result.RowsAffected == 1 {
		s.metrics.IncGateOutcome(source, string(idemdomain.Accepted))
		return idemdomain.Accepted, &receipt, nil
	}

	existing, err := s.find(ctx, source, notificationID)
	if err != nil {
		return "", nil, err
	}
	if existing.Outcome == idemdomain.OutcomeError {
		reclaimed, err := s.reclaim(ctx, existing)
		if err != nil {
			return "", nil, err
		}
		if reclaimed {
			s.metrics.IncGateOutcome(source, string(idemdomain.Accepted))
			s.log.Info("failed notification readmitted",
				zap.String("source", source),
				zap.String("notification_id", notificationID),
			)
			return idemdomain.Accepted, existing, nil
		}
	}

	s.metrics.IncGateOutcome(source, string(idemdomain.Duplicate))
	s.log.Info("duplicate notification",
		zap.String("source", source),
		zap.String("notification_id", notificationID),
		zap.String("outcome", string(existing.Outcome)),
	)
	return idemdomain.Duplicate, existing, nil
}

func (s *Service) Classify(ctx context.Context, receiptID snowflake.ID, outcome idemdomain.Outcome, orderID *snowflake.ID) error {
	if !idemdomain.IsValidOutcome(outcome) {
		return idemdomain.ErrInvalidOutcome
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE notification_receipts
		 SET outcome = ?, order_id = COALESCE(?, order_id), processed_at = ?
		 WHERE id = ?`,
		outcome,
		orderID,
		s.now(),
		receiptID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return idemdomain.ErrReceiptNotFound
	}
	return nil
}

// reclaim flips an errored receipt back to pending. Only one concurrent
// redelivery can win the conditional update.
func (s *Service) reclaim(ctx context.Context, receipt *idemdomain.Receipt) (bool, error) {
	now := s.now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE notification_receipts
		 SET outcome = ?, received_at = ?, processed_at = NULL
		 WHERE id = ? AND outcome = ?`,
		idemdomain.OutcomePending,
		now,
		receipt.ID,
		idemdomain.OutcomeError,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	receipt.Outcome = idemdomain.OutcomePending
	receipt.ReceivedAt = now
	receipt.ProcessedAt = nil
	return true, nil
}

func (s *Service) find(ctx context.Context, source, notificationID string) (*idemdomain.Receipt, error) {
	var receipt idemdomain.Receipt
	err := s.db.WithContext(ctx).
		Where("source = ? AND notification_id = ?", source, notificationID).
		Take(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, idemdomain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

func normalizePayload(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
