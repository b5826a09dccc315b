package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ExpiryCandidate pairs an activated order with its plan validity.
type ExpiryCandidate struct {
	Order
	ValidityDays int `gorm:"column:validity_days"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByPartnerOrderRef(ctx context.Context, db *gorm.DB, ref string) (*Order, error)
	FindByTransactionRef(ctx context.Context, db *gorm.DB, ref string) (*Order, error)
	// CompareAndSwap writes fields only while the order is still in expected.
	CompareAndSwap(ctx context.Context, db *gorm.DB, id snowflake.ID, expected OrderStatus, fields map[string]any) (bool, error)
	ListExpiryCandidates(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]ExpiryCandidate, error)
	ListMeteringCandidates(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Order, error)
	ListStuckProvisioning(ctx context.Context, db *gorm.DB, startedBefore time.Time, limit int) ([]Order, error)
	ListPaidUnprovisioned(ctx context.Context, db *gorm.DB, paidBefore time.Time, limit int) ([]Order, error)
	ListCompletedTopUps(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]Order, error)
}
