package provisioning

import (
	"encoding/json"
	"errors"
	"strings"
)

// WebhookKind classifies a partner push notification.
type WebhookKind string

const (
	WebhookOrderStatus      WebhookKind = "order_status"
	WebhookProfileInstalled WebhookKind = "profile_installed"
	WebhookOther            WebhookKind = "other"
)

var ErrInvalidWebhook = errors.New("invalid_partner_webhook")

// WebhookEvent is the normalized partner push notification.
type WebhookEvent struct {
	NotificationID    string
	Type              string
	Kind              WebhookKind
	PartnerOrderID    string
	CustomerReference string
	Status            Status
	FailureReason     string
	Profiles          []Profile
}

// FirstComplete returns the first profile with a complete activation string.
func (e WebhookEvent) FirstComplete() (Profile, bool) {
	res := OrderStatusResult{Profiles: e.Profiles}
	profile, _, ok := res.FirstComplete()
	return profile, ok
}

type wireWebhook struct {
	NotifyID       string `json:"notifyId"`
	NotificationID string `json:"notification_id"`
	NotifyType     string `json:"notifyType"`
	EventType      string `json:"event_type"`

	Content *wireWebhookContent `json:"content"`
	Data    *wireWebhookContent `json:"data"`
}

type wireWebhookContent struct {
	wireOrder

	TransactionID     string `json:"transactionId"`
	CustomerReference string `json:"customer_reference"`

	ICCID          string `json:"iccid"`
	ProfileID      string `json:"profile_id"`
	EsimTranNo     string `json:"esimTranNo"`
	TransactionRef string `json:"transaction_ref"`
	QRCodeURL      string `json:"qrCodeUrl"`
	QRCodeURL2     string `json:"qr_code_url"`
	EsimStatus     string `json:"esimStatus"`
	State          string `json:"state"`
}

// ParseWebhook normalizes a partner push payload.
func ParseWebhook(payload []byte) (WebhookEvent, error) {
	var wire wireWebhook
	if err := json.Unmarshal(payload, &wire); err != nil {
		return WebhookEvent{}, ErrInvalidWebhook
	}
	id := firstNonEmpty(wire.NotifyID, wire.NotificationID)
	eventType := firstNonEmpty(wire.NotifyType, wire.EventType)
	content := wire.Content
	if content == nil {
		content = wire.Data
	}
	if id == "" || eventType == "" || content == nil {
		return WebhookEvent{}, ErrInvalidWebhook
	}

	event := WebhookEvent{
		NotificationID:    id,
		Type:              eventType,
		Kind:              webhookKind(eventType),
		PartnerOrderID:    content.partnerOrderID(),
		CustomerReference: firstNonEmpty(content.CustomerReference, content.TransactionID),
		Status:            content.status(),
		FailureReason:     strings.TrimSpace(content.Reason),
		Profiles:          content.profiles(),
	}

	// Single-profile pushes carry the profile fields inline.
	inline := wireProfile{
		ICCID:          content.ICCID,
		ProfileID:      content.ProfileID,
		EsimTranNo:     content.EsimTranNo,
		TransactionRef: content.TransactionRef,
		AC:             content.AC,
		ActivationCode: content.ActivationCode,
		QRCodeURL:      content.QRCodeURL,
		QRCodeURL2:     content.QRCodeURL2,
		EsimStatus:     content.EsimStatus,
		State:          content.State,
	}.normalize()
	if len(event.Profiles) == 0 && (inline.TransactionRef != "" || inline.ProfileID != "" || inline.ActivationString != "") {
		event.Profiles = []Profile{inline}
	}
	return event, nil
}

func webhookKind(eventType string) WebhookKind {
	switch strings.ToUpper(strings.TrimSpace(eventType)) {
	case "ORDER_STATUS", "ORDER.STATUS", "ORDER.COMPLETED", "ORDER.FAILED", "ORDER_COMPLETED", "ORDER_FAILED":
		return WebhookOrderStatus
	case "ESIM_STATUS", "SMDP_EVENT", "PROFILE.INSTALLED", "PROFILE_INSTALLED":
		return WebhookProfileInstalled
	default:
		return WebhookOther
	}
}
