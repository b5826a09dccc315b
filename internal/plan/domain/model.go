package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// BytesPerGB is the decimal gigabyte the partners meter in.
const BytesPerGB = 1_000_000_000

// Plan is a sellable data package from the catalog.
type Plan struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	SKU          string          `gorm:"column:sku;not null;uniqueIndex" json:"sku"`
	Name         string          `gorm:"not null" json:"name"`
	DataGB       decimal.Decimal `gorm:"column:data_gb;type:numeric(10,3);not null" json:"data_gb"`
	ValidityDays int             `gorm:"not null" json:"validity_days"`
	PriceAmount  int64           `gorm:"not null" json:"price_amount"`
	Currency     string          `gorm:"not null" json:"currency"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

func (Plan) TableName() string { return "plans" }

// TotalBytes returns the plan allowance in bytes.
func (p Plan) TotalBytes() int64 {
	return p.DataGB.Mul(decimal.NewFromInt(BytesPerGB)).IntPart()
}
