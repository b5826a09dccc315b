package domain

import "errors"

var (
	ErrInvalidOrder         = errors.New("invalid_order")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrForbidden            = errors.New("forbidden")
	ErrIllegalTransition    = errors.New("illegal_transition")
	ErrStoreConflict        = errors.New("store_conflict")
	ErrPartnerTimeout       = errors.New("partner_timeout")
	ErrPartnerRejected      = errors.New("partner_rejected")
	ErrPartnerUnavailable   = errors.New("partner_unavailable")
	ErrIncompleteActivation = errors.New("incomplete_activation_details")
	ErrMissingPaymentFacts  = errors.New("missing_payment_facts")
	ErrMissingPartnerRef    = errors.New("missing_partner_order_ref")
	ErrInvalidUsage         = errors.New("invalid_usage")
	ErrNotYetExpired        = errors.New("not_yet_expired")
)
