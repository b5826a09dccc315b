package domain

import "time"

// EventType names a lifecycle trigger. Every mutation of an order is driven
// by exactly one event.
type EventType string

const (
	EventPaymentCaptured       EventType = "payment.captured"
	EventProvisioningAccepted  EventType = "provisioning.accepted"
	EventProvisioningCompleted EventType = "provisioning.completed"
	EventProvisioningFailed    EventType = "provisioning.failed"
	EventProfileActivated      EventType = "profile.activated"
	EventUsageRecorded         EventType = "usage.recorded"
	EventUsageDepleted         EventType = "usage.depleted"
	EventUsageReplenished      EventType = "usage.replenished"
	EventOrderExpired          EventType = "order.expired"
	EventOrderRefunded         EventType = "order.refunded"
)

// Event carries the trigger and the facts it brings.
type Event struct {
	Type EventType

	Payment          *PaymentFacts
	PartnerOrderRef  string
	Activation       *ActivationDetails
	Usage            *UsageFacts
	ActivationSource ActivationSource
	ValidityDays     int
	FailureReason    string
	Actor            string
}

type PaymentFacts struct {
	Provider  string
	Reference string
	Amount    int64
	Currency  string
	PaidAt    time.Time
}

// ActivationDetails is the normalized install data for one profile.
type ActivationDetails struct {
	ICCID          string
	TransactionRef string
	SMDPAddress    string
	ActivationCode string
	InstallURL     string
}

// Complete reports whether the profile can be installed from these details.
func (a ActivationDetails) Complete() bool {
	return a.SMDPAddress != "" && a.ActivationCode != ""
}

// UsageFacts is the result of running the usage policy on one sample.
type UsageFacts struct {
	UsedBytes      int64
	RemainingBytes int64
	BonusBytes     int64
	SampledAt      time.Time
}

// Transition is a planned, not yet persisted, state change.
type Transition struct {
	Event  EventType
	From   OrderStatus
	To     OrderStatus
	Fields map[string]any
	Next   Order
}

// TransitionResult describes what Apply committed.
type TransitionResult struct {
	Order   Order
	Steps   []Transition
	Applied bool
}

// Last returns the final committed step, if any.
func (r TransitionResult) Last() (Transition, bool) {
	if len(r.Steps) == 0 {
		return Transition{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}
