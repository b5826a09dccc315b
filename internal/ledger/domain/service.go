package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CommissionLedger is notified of paid and refunded orders.
type CommissionLedger interface {
	// Accrue records the commission for a paid order. Repeated calls write once.
	Accrue(ctx context.Context, orderID snowflake.ID, orderAmount int64, currency string) error
	// Void reverses an earlier accrual. Without one it does nothing.
	Void(ctx context.Context, orderID snowflake.ID) error
}

// BonusLedger reports extra bytes credited to an order.
type BonusLedger interface {
	CreditedBytes(ctx context.Context, orderID snowflake.ID) (int64, error)
}

var (
	ErrInvalidOrder    = errors.New("invalid_order")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidAmount   = errors.New("invalid_amount")
)
