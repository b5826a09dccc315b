package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CommissionKind distinguishes accruals from reversals.
type CommissionKind string

const (
	CommissionKindAccrue CommissionKind = "accrue"
	CommissionKindVoid   CommissionKind = "void"
)

// CommissionEntry is written at most once per order and kind.
type CommissionEntry struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	OrderID   snowflake.ID   `gorm:"not null;uniqueIndex:ux_commission_entries_order_kind,priority:1"`
	Kind      CommissionKind `gorm:"type:text;not null;uniqueIndex:ux_commission_entries_order_kind,priority:2"`
	Amount    int64          `gorm:"not null"`
	Currency  string         `gorm:"type:text;not null"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CommissionEntry) TableName() string { return "commission_entries" }

// BonusCredit is extra data granted to an order by a promotion flow.
type BonusCredit struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	Bytes     int64        `gorm:"not null"`
	Reason    *string      `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BonusCredit) TableName() string { return "bonus_credits" }
