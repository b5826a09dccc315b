// Package stripe verifies and parses Stripe webhook events.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/simcore/internal/notification/domain"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

type Adapter struct {
	webhookSecret string
}

func New(webhookSecret string) *Adapter {
	return &Adapter{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (a *Adapter) Source() string {
	return notificationdomain.SourceStripe
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return notificationdomain.ErrNotConfigured
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return notificationdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return notificationdomain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return notificationdomain.ErrInvalidSignature
}

// Sign returns the v1 signature Stripe sends for payload at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*notificationdomain.Notification, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, notificationdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, notificationdomain.ErrInvalidPayload
	}

	n := &notificationdomain.Notification{
		Source:         notificationdomain.SourceStripe,
		NotificationID: event.ID,
		EventType:      event.Type,
		Payload:        payload,
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		var intent stripePaymentIntent
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return nil, notificationdomain.ErrInvalidPayload
		}
		amount := intent.AmountReceived
		if amount <= 0 {
			amount = intent.Amount
		}
		return a.captured(n, intent.ID, amount, intent.Currency, intent.Metadata, timestamp(intent.Created, event.Created))
	case "charge.succeeded":
		var charge stripeCharge
		if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
			return nil, notificationdomain.ErrInvalidPayload
		}
		return a.captured(n, charge.ID, charge.Amount, charge.Currency, charge.Metadata, timestamp(charge.Created, event.Created))
	default:
		// Refunds are admin actions here; failures and everything else
		// leave the order untouched.
		return n, nil
	}
}

func (a *Adapter) captured(
	n *notificationdomain.Notification,
	reference string,
	amount int64,
	currency string,
	metadata map[string]any,
	paidAt time.Time,
) (*notificationdomain.Notification, error) {
	orderID, err := parseOrderID(metadata)
	if err != nil {
		return nil, err
	}
	n.OrderID = &orderID
	n.Event = &orderdomain.Event{
		Type: orderdomain.EventPaymentCaptured,
		Payment: &orderdomain.PaymentFacts{
			Provider:  notificationdomain.SourceStripe,
			Reference: reference,
			Amount:    amount,
			Currency:  strings.ToUpper(strings.TrimSpace(currency)),
			PaidAt:    paidAt,
		},
	}
	return n, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string         `json:"id"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeCharge struct {
	ID       string         `json:"id"`
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency"`
	Created  int64          `json:"created"`
	Metadata map[string]any `json:"metadata"`
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func parseOrderID(metadata map[string]any) (snowflake.ID, error) {
	raw := readMetadataValue(metadata, "order_id")
	if raw == "" {
		return 0, fmt.Errorf("missing metadata.order_id: %w", notificationdomain.ErrInvalidPayload)
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("metadata.order_id %q: %w", raw, notificationdomain.ErrInvalidPayload)
	}
	return id, nil
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
