// Package domain holds the canonical notification every source adapter
// produces and the errors intake reports.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

const (
	SourceStripe   = "stripe"
	SourceMidtrans = "midtrans"
	SourcePartner  = "partner"
)

// Notification is a verified inbound notification in source-neutral form.
// Event is nil when the notification carries nothing the order lifecycle
// acts on.
type Notification struct {
	Source         string `validate:"required,oneof=stripe midtrans partner"`
	NotificationID string `validate:"required,max=255"`
	EventType      string `validate:"required,max=128"`

	// At least one of these locates the order.
	OrderID         *snowflake.ID
	PartnerOrderRef string
	TransactionRef  string

	Event   *orderdomain.Event
	Payload []byte
}

// Ignored reports whether the notification is acknowledged without effect.
func (n Notification) Ignored() bool {
	return n.Event == nil
}

// Adapter verifies and parses notifications from one source.
type Adapter interface {
	Source() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Notification, error)
}

// Result is what intake did with one notification.
type Result struct {
	Admission string
	Outcome   string
	OrderID   *snowflake.ID
}

var (
	ErrUnknownSource      = errors.New("unknown_notification_source")
	ErrNotConfigured      = errors.New("notification_source_not_configured")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrOrderNotFound      = errors.New("notification_order_not_found")
	ErrRateLimited        = errors.New("rate_limited")
	ErrLimiterUnavailable = errors.New("rate_limiter_unavailable")
	ErrProcessingFailed   = errors.New("notification_processing_failed")
)

// RateLimitError is returned when a source exceeds its intake window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
