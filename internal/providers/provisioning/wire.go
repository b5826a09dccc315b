package provisioning

import (
	"strings"
	"time"
)

// Partners answer either with an envelope around the order object or with
// the object at the top level, and name the same fields differently across
// API versions. wireOrder accepts every known spelling.
type wireEnvelope struct {
	Success   *bool      `json:"success"`
	ErrorCode string     `json:"errorCode"`
	ErrorMsg  string     `json:"errorMsg"`
	Obj       *wireOrder `json:"obj"`
	wireOrder
}

type wireOrder struct {
	OrderNo string `json:"orderNo"`
	OrderID string `json:"order_id"`

	Status      string `json:"status"`
	OrderStatus string `json:"orderStatus"`
	Reason      string `json:"reason"`

	AC             string `json:"ac"`
	ActivationCode string `json:"activation_code"`

	Profiles []wireProfile `json:"profiles"`
	EsimList []wireProfile `json:"esimList"`
}

type wireProfile struct {
	ICCID     string `json:"iccid"`
	ProfileID string `json:"profile_id"`

	EsimTranNo     string `json:"esimTranNo"`
	TransactionRef string `json:"transaction_ref"`

	AC             string `json:"ac"`
	ActivationCode string `json:"activation_code"`

	QRCodeURL   string `json:"qrCodeUrl"`
	QRCodeURL2  string `json:"qr_code_url"`
	ExpiredTime string `json:"expiredTime"`
	ExpiresAt   string `json:"expires_at"`

	EsimStatus string `json:"esimStatus"`
	State      string `json:"state"`
}

func (e wireEnvelope) order() wireOrder {
	if e.Obj != nil {
		return *e.Obj
	}
	return e.wireOrder
}

func (e wireEnvelope) rejected() (string, bool) {
	if e.Success != nil && !*e.Success {
		msg := strings.TrimSpace(e.ErrorMsg)
		if msg == "" {
			msg = strings.TrimSpace(e.ErrorCode)
		}
		return msg, true
	}
	return "", false
}

func (o wireOrder) partnerOrderID() string {
	return firstNonEmpty(o.OrderNo, o.OrderID)
}

func (o wireOrder) activationString() string {
	return firstNonEmpty(o.AC, o.ActivationCode)
}

func (o wireOrder) status() Status {
	return normalizeStatus(firstNonEmpty(o.Status, o.OrderStatus))
}

func (o wireOrder) profiles() []Profile {
	raw := o.Profiles
	if len(raw) == 0 {
		raw = o.EsimList
	}
	profiles := make([]Profile, 0, len(raw))
	for _, p := range raw {
		profiles = append(profiles, p.normalize())
	}
	return profiles
}

func (p wireProfile) normalize() Profile {
	profile := Profile{
		TransactionRef:   firstNonEmpty(p.EsimTranNo, p.TransactionRef),
		ProfileID:        firstNonEmpty(p.ICCID, p.ProfileID),
		ActivationString: firstNonEmpty(p.AC, p.ActivationCode),
		QRCodeURL:        firstNonEmpty(p.QRCodeURL, p.QRCodeURL2),
	}
	if ts := parseTime(firstNonEmpty(p.ExpiredTime, p.ExpiresAt)); ts != nil {
		profile.ExpiresAt = ts
	}
	switch strings.ToUpper(firstNonEmpty(p.EsimStatus, p.State)) {
	case "IN_USE", "INSTALLED", "ENABLED":
		profile.Installed = true
	}
	return profile
}

func normalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "GOT_RESOURCE", "COMPLETED", "COMPLETE", "SUCCESS", "READY":
		return StatusCompleted
	case "FAILED", "FAIL", "CANCEL", "CANCELLED", "CANCELED", "REJECTED":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
