// Package lifecycle holds the order transition graph. It is pure: callers
// load the order, plan a transition here, and persist it with a
// compare-and-swap on the starting status.
package lifecycle

import (
	"strings"
	"time"

	"github.com/smallbiznis/simcore/internal/order/domain"
)

// Next returns the status an event moves current into.
func Next(current domain.OrderStatus, event domain.EventType) (domain.OrderStatus, bool) {
	switch event {
	case domain.EventPaymentCaptured:
		if current == domain.OrderStatusPending {
			return domain.OrderStatusPaid, true
		}
	case domain.EventProvisioningAccepted:
		if current == domain.OrderStatusPaid {
			return domain.OrderStatusProvisioning, true
		}
	case domain.EventProvisioningCompleted:
		if current == domain.OrderStatusProvisioning {
			return domain.OrderStatusCompleted, true
		}
	case domain.EventProvisioningFailed:
		switch current {
		case domain.OrderStatusPaid, domain.OrderStatusProvisioning:
			return domain.OrderStatusFailed, true
		}
	case domain.EventProfileActivated:
		if current == domain.OrderStatusCompleted {
			return domain.OrderStatusActive, true
		}
	case domain.EventUsageRecorded:
		switch current {
		case domain.OrderStatusCompleted, domain.OrderStatusActive, domain.OrderStatusDepleted:
			return current, true
		}
	case domain.EventUsageDepleted:
		if current == domain.OrderStatusActive {
			return domain.OrderStatusDepleted, true
		}
	case domain.EventUsageReplenished:
		if current == domain.OrderStatusDepleted {
			return domain.OrderStatusActive, true
		}
	case domain.EventOrderExpired:
		switch current {
		case domain.OrderStatusActive, domain.OrderStatusCompleted, domain.OrderStatusProvisioning:
			return domain.OrderStatusExpired, true
		}
	case domain.EventOrderRefunded:
		switch current {
		case domain.OrderStatusRefunded, domain.OrderStatusExpired:
		default:
			if domain.IsValidStatus(current) {
				return domain.OrderStatusRefunded, true
			}
		}
	}
	return "", false
}

// IsAllowed reports whether event is legal from current.
func IsAllowed(current domain.OrderStatus, event domain.EventType) bool {
	_, ok := Next(current, event)
	return ok
}

// Plan validates event against order and computes the field changes the
// transition writes. The returned Next carries the order as it will look
// after the write.
func Plan(order domain.Order, event domain.Event, now time.Time) (domain.Transition, error) {
	to, ok := Next(order.Status, event.Type)
	if !ok {
		return domain.Transition{}, domain.ErrIllegalTransition
	}

	now = now.UTC()
	next := order
	fields := map[string]any{}

	switch event.Type {
	case domain.EventPaymentCaptured:
		p := event.Payment
		if p == nil || strings.TrimSpace(p.Reference) == "" || strings.TrimSpace(p.Provider) == "" {
			return domain.Transition{}, domain.ErrMissingPaymentFacts
		}
		paidAt := p.PaidAt.UTC()
		if p.PaidAt.IsZero() {
			paidAt = now
		}
		provider := p.Provider
		reference := p.Reference
		fields["payment_provider"] = provider
		fields["payment_reference"] = reference
		fields["paid_at"] = paidAt
		next.PaymentProvider = &provider
		next.PaymentReference = &reference
		next.PaidAt = &paidAt
		if p.Amount > 0 {
			fields["amount"] = p.Amount
			next.Amount = p.Amount
		}
		if p.Currency != "" {
			currency := strings.ToUpper(p.Currency)
			fields["currency"] = currency
			next.Currency = currency
		}

	case domain.EventProvisioningAccepted:
		ref := strings.TrimSpace(event.PartnerOrderRef)
		if ref == "" {
			return domain.Transition{}, domain.ErrMissingPartnerRef
		}
		fields["partner_order_ref"] = ref
		fields["provisioning_started_at"] = now
		next.PartnerOrderRef = &ref
		next.ProvisioningStartedAt = &now

	case domain.EventProvisioningCompleted:
		// A top-up adds capacity to its parent's profile and has no install
		// data of its own.
		if order.IsTopup {
			fields["completed_at"] = now
			next.CompletedAt = &now
			break
		}
		if event.Activation == nil || !event.Activation.Complete() {
			return domain.Transition{}, domain.ErrIncompleteActivation
		}
		// Activation details are written once.
		if order.ActivationCode != nil && *order.ActivationCode != "" {
			return domain.Transition{}, domain.ErrIllegalTransition
		}
		applyActivation(fields, &next, *event.Activation)
		fields["completed_at"] = now
		next.CompletedAt = &now

	case domain.EventProvisioningFailed:
		reason := strings.TrimSpace(event.FailureReason)
		if reason == "" {
			reason = "unknown"
		}
		fields["failure_reason"] = reason
		next.FailureReason = &reason

	case domain.EventProfileActivated:
		source := event.ActivationSource
		if source == "" {
			source = domain.ActivationSourcePartnerEvent
		}
		fields["activated_at"] = now
		fields["activation_source"] = string(source)
		next.ActivatedAt = &now
		next.ActivationSource = &source

	case domain.EventUsageRecorded, domain.EventUsageDepleted, domain.EventUsageReplenished:
		u := event.Usage
		if u == nil || u.UsedBytes < 0 || u.RemainingBytes < 0 || u.BonusBytes < 0 {
			return domain.Transition{}, domain.ErrInvalidUsage
		}
		if event.Type == domain.EventUsageDepleted && u.RemainingBytes != 0 {
			return domain.Transition{}, domain.ErrInvalidUsage
		}
		if event.Type == domain.EventUsageReplenished && u.RemainingBytes == 0 {
			return domain.Transition{}, domain.ErrInvalidUsage
		}
		sampledAt := u.SampledAt.UTC()
		if u.SampledAt.IsZero() {
			sampledAt = now
		}
		fields["data_used_bytes"] = u.UsedBytes
		fields["data_remaining_bytes"] = u.RemainingBytes
		fields["bonus_bytes"] = u.BonusBytes
		fields["usage_updated_at"] = sampledAt
		next.DataUsedBytes = u.UsedBytes
		next.DataRemainingBytes = u.RemainingBytes
		next.BonusBytes = u.BonusBytes
		next.UsageUpdatedAt = &sampledAt

	case domain.EventOrderExpired:
		expiresAt := order.ExpiresAt(event.ValidityDays)
		if expiresAt == nil || !now.After(*expiresAt) {
			return domain.Transition{}, domain.ErrNotYetExpired
		}
		fields["expired_at"] = now
		next.ExpiredAt = &now

	case domain.EventOrderRefunded:
		fields["refunded_at"] = now
		next.RefundedAt = &now
	}

	fields["status"] = string(to)
	fields["updated_at"] = now
	next.Status = to
	next.UpdatedAt = now

	return domain.Transition{
		Event:  event.Type,
		From:   order.Status,
		To:     to,
		Fields: fields,
		Next:   next,
	}, nil
}

func applyActivation(fields map[string]any, next *domain.Order, a domain.ActivationDetails) {
	smdp := a.SMDPAddress
	code := a.ActivationCode
	fields["smdp_address"] = smdp
	fields["activation_code"] = code
	next.SMDPAddress = &smdp
	next.ActivationCode = &code
	if a.ICCID != "" {
		iccid := a.ICCID
		fields["iccid"] = iccid
		next.ICCID = &iccid
	}
	if a.TransactionRef != "" {
		ref := a.TransactionRef
		fields["transaction_ref"] = ref
		next.TransactionRef = &ref
	}
	if a.InstallURL != "" {
		url := a.InstallURL
		fields["install_url"] = url
		next.InstallURL = &url
	}
}
