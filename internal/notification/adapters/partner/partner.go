// Package partner verifies and parses push notifications from the
// provisioning partner.
package partner

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/simcore/internal/notification/domain"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/providers/provisioning"
)

// SignatureHeader carries hex(hmac_sha256(secret, body)).
const SignatureHeader = "X-Partner-Signature"

type Adapter struct {
	secret string
}

func New(secret string) *Adapter {
	return &Adapter{secret: strings.TrimSpace(secret)}
}

func (a *Adapter) Source() string {
	return notificationdomain.SourcePartner
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.secret == "" {
		return notificationdomain.ErrNotConfigured
	}
	got := strings.ToLower(strings.TrimSpace(headers.Get(SignatureHeader)))
	if got == "" {
		return notificationdomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(got), []byte(Sign(a.secret, payload))) {
		return notificationdomain.ErrInvalidSignature
	}
	return nil
}

func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*notificationdomain.Notification, error) {
	ev, err := provisioning.ParseWebhook(payload)
	if err != nil {
		if errors.Is(err, provisioning.ErrInvalidWebhook) {
			return nil, notificationdomain.ErrInvalidPayload
		}
		return nil, err
	}

	n := &notificationdomain.Notification{
		Source:          notificationdomain.SourcePartner,
		NotificationID:  ev.NotificationID,
		EventType:       ev.Type,
		PartnerOrderRef: ev.PartnerOrderID,
		Payload:         payload,
	}
	if id, err := snowflake.ParseString(ev.CustomerReference); err == nil && id > 0 {
		n.OrderID = &id
	}
	if len(ev.Profiles) > 0 {
		n.TransactionRef = ev.Profiles[0].TransactionRef
	}

	switch ev.Kind {
	case provisioning.WebhookOrderStatus:
		switch ev.Status {
		case provisioning.StatusCompleted:
			profile, ok := ev.FirstComplete()
			if !ok {
				// Completion without install data; the stuck-order sweep
				// fetches it.
				return n, nil
			}
			details, _ := profile.ActivationDetails()
			n.TransactionRef = details.TransactionRef
			n.Event = &orderdomain.Event{
				Type:            orderdomain.EventProvisioningCompleted,
				PartnerOrderRef: ev.PartnerOrderID,
				Activation:      &details,
			}
		case provisioning.StatusFailed:
			reason := ev.FailureReason
			if reason == "" {
				reason = "partner reported failure"
			}
			n.Event = &orderdomain.Event{
				Type:            orderdomain.EventProvisioningFailed,
				PartnerOrderRef: ev.PartnerOrderID,
				FailureReason:   reason,
			}
		}
	case provisioning.WebhookProfileInstalled:
		if installed(ev) {
			n.Event = &orderdomain.Event{
				Type:             orderdomain.EventProfileActivated,
				ActivationSource: orderdomain.ActivationSourcePartnerEvent,
			}
		}
	}
	return n, nil
}

func installed(ev provisioning.WebhookEvent) bool {
	for _, p := range ev.Profiles {
		if p.Installed {
			return true
		}
	}
	return false
}
