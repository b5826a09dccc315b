package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type AdmitRequest struct {
	Source         string
	NotificationID string
	EventType      string
	OrderID        *snowflake.ID
	Payload        []byte
}

// Gate deduplicates inbound notifications per (source, notification id).
type Gate interface {
	// Admit records the notification. Exactly one caller per key gets
	// Accepted; every other caller gets Duplicate and the stored receipt.
	// A receipt classified OutcomeError is admitted again, once, so a
	// redelivery can retry the effect.
	Admit(ctx context.Context, req AdmitRequest) (AdmitResult, *Receipt, error)
	Classify(ctx context.Context, receiptID snowflake.ID, outcome Outcome, orderID *snowflake.ID) error
}

var (
	ErrInvalidSource         = errors.New("invalid_source")
	ErrInvalidNotificationID = errors.New("invalid_notification_id")
	ErrInvalidOutcome        = errors.New("invalid_outcome")
	ErrReceiptNotFound       = errors.New("receipt_not_found")
)

func IsValidOutcome(o Outcome) bool {
	switch o {
	case OutcomePending, OutcomeApplied, OutcomeNoop, OutcomeIllegalTransition, OutcomeIgnored, OutcomeError:
		return true
	default:
		return false
	}
}
