// Package midtrans verifies and parses Midtrans HTTP notifications.
package midtrans

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
	notificationdomain "github.com/smallbiznis/simcore/internal/notification/domain"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

const defaultCurrency = "IDR"

// Midtrans reports times in Western Indonesia Time without an offset.
var wib = time.FixedZone("WIB", 7*60*60)

// zeroDecimal lists currencies Midtrans settles without minor units.
var zeroDecimal = map[string]bool{
	"IDR": true,
	"JPY": true,
	"KRW": true,
	"VND": true,
}

type Adapter struct {
	serverKey string
}

func New(serverKey string) *Adapter {
	return &Adapter{serverKey: strings.TrimSpace(serverKey)}
}

func (a *Adapter) Source() string {
	return notificationdomain.SourceMidtrans
}

// Verify checks signature_key = sha512(order_id + status_code + gross_amount + server_key).
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.serverKey == "" {
		return notificationdomain.ErrNotConfigured
	}
	var notif coreapi.TransactionStatusResponse
	if err := json.Unmarshal(payload, &notif); err != nil {
		return notificationdomain.ErrInvalidSignature
	}
	got := strings.ToLower(strings.TrimSpace(notif.SignatureKey))
	if got == "" {
		return notificationdomain.ErrInvalidSignature
	}
	want := Sign(notif.OrderID, notif.StatusCode, notif.GrossAmount, a.serverKey)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return notificationdomain.ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature_key Midtrans attaches to a notification.
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*notificationdomain.Notification, error) {
	var notif coreapi.TransactionStatusResponse
	if err := json.Unmarshal(payload, &notif); err != nil {
		return nil, notificationdomain.ErrInvalidPayload
	}
	status := strings.ToLower(strings.TrimSpace(notif.TransactionStatus))
	orderRef := strings.TrimSpace(notif.OrderID)
	if status == "" || orderRef == "" {
		return nil, notificationdomain.ErrInvalidPayload
	}

	// Midtrans re-sends a transaction once per status change, so the
	// status is part of the notification identity.
	txID := strings.TrimSpace(notif.TransactionID)
	if txID == "" {
		txID = orderRef
	}
	n := &notificationdomain.Notification{
		Source:         notificationdomain.SourceMidtrans,
		NotificationID: txID + ":" + status,
		EventType:      status,
		Payload:        payload,
	}

	if !captured(status, notif.FraudStatus) {
		return n, nil
	}

	orderID, err := snowflake.ParseString(orderRef)
	if err != nil || orderID <= 0 {
		return nil, fmt.Errorf("order_id %q: %w", orderRef, notificationdomain.ErrInvalidPayload)
	}
	currency := strings.ToUpper(strings.TrimSpace(notif.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	amount, err := MinorUnits(notif.GrossAmount, currency)
	if err != nil {
		return nil, err
	}

	n.OrderID = &orderID
	n.Event = &orderdomain.Event{
		Type: orderdomain.EventPaymentCaptured,
		Payment: &orderdomain.PaymentFacts{
			Provider:  notificationdomain.SourceMidtrans,
			Reference: txID,
			Amount:    amount,
			Currency:  currency,
			PaidAt:    paidAt(notif.SettlementTime, notif.TransactionTime),
		},
	}
	return n, nil
}

func captured(status, fraudStatus string) bool {
	switch status {
	case "settlement":
		return true
	case "capture":
		fraud := strings.ToLower(strings.TrimSpace(fraudStatus))
		return fraud == "" || fraud == "accept"
	default:
		return false
	}
}

// MinorUnits converts a Midtrans gross_amount string into minor units.
func MinorUnits(grossAmount, currency string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(grossAmount))
	if err != nil || amount.IsNegative() {
		return 0, fmt.Errorf("gross_amount %q: %w", grossAmount, notificationdomain.ErrInvalidPayload)
	}
	if !zeroDecimal[currency] {
		amount = amount.Shift(2)
	}
	return amount.Round(0).IntPart(), nil
}

func paidAt(values ...string) time.Time {
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if ts, err := time.ParseInLocation("2006-01-02 15:04:05", raw, wib); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
