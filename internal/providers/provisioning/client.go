// Package provisioning is the client for the eSIM provisioning partner. All
// partner payload variants are normalized here; callers only see the types
// declared in this file.
package provisioning

import (
	"context"
	"time"

	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

// Status is the normalized partner order state.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CreateOrderResult is the partner's answer to an order request. The
// activation string is present when the partner provisions synchronously.
type CreateOrderResult struct {
	PartnerOrderID   string
	Status           Status
	ActivationString string
	Profile          *Profile
}

// OrderStatusResult is the partner's view of an existing order.
type OrderStatusResult struct {
	Status        Status
	FailureReason string
	Profiles      []Profile
}

// Profile is one eSIM profile attached to a partner order.
type Profile struct {
	TransactionRef   string
	ProfileID        string
	ActivationString string
	QRCodeURL        string
	ExpiresAt        *time.Time
	Installed        bool
}

// ActivationDetails parses the profile activation string into install data.
func (p Profile) ActivationDetails() (orderdomain.ActivationDetails, error) {
	parsed, err := ParseActivationString(p.ActivationString)
	if err != nil {
		return orderdomain.ActivationDetails{}, err
	}
	return orderdomain.ActivationDetails{
		ICCID:          p.ProfileID,
		TransactionRef: p.TransactionRef,
		SMDPAddress:    parsed.SMDPAddress,
		ActivationCode: parsed.MatchingID,
		InstallURL:     p.QRCodeURL,
	}, nil
}

// FirstComplete returns the first profile with a complete activation string.
func (r OrderStatusResult) FirstComplete() (Profile, orderdomain.ActivationDetails, bool) {
	for _, profile := range r.Profiles {
		details, err := profile.ActivationDetails()
		if err == nil {
			return profile, details, true
		}
	}
	return Profile{}, orderdomain.ActivationDetails{}, false
}

// TopUpResult is the partner's answer to a capacity top-up. No new profile
// is issued; the capacity lands on the profile named in the request.
type TopUpResult struct {
	PartnerOrderID string
	Status         Status
}

//go:generate mockgen -source=client.go -destination=./mocks/mock_client.go -package=mocks
type Client interface {
	// CreateOrder requests a profile for sku. customerReference is forwarded
	// as the partner idempotency key.
	CreateOrder(ctx context.Context, sku, customerReference string) (CreateOrderResult, error)
	GetOrderStatus(ctx context.Context, partnerOrderID string) (OrderStatusResult, error)
	// TopUp adds sku's allowance to the profile identified by
	// transactionRef. customerReference is the idempotency key.
	TopUp(ctx context.Context, transactionRef, sku, customerReference string) (TopUpResult, error)
}
