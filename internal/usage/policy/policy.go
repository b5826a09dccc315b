// Package policy turns a metering sample into remaining bytes and the
// lifecycle event that records it.
package policy

import (
	"time"

	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

// DepletionFloorBytes is the smallest balance still considered usable.
const DepletionFloorBytes int64 = 1 << 20

// Decision is the outcome of evaluating one sample.
type Decision struct {
	UsedBytes      int64
	RemainingBytes int64
	BonusBytes     int64

	// Proposed is the status the order should hold. It is set only for
	// orders in active or depleted.
	Proposed    orderdomain.OrderStatus
	HasProposal bool

	// Event is empty when the order status does not accept usage facts.
	Event orderdomain.EventType
}

// Remaining computes max(0, total-used) + bonus with the depletion floor
// applied. Negative inputs count as zero.
func Remaining(used, total, bonus int64) int64 {
	used = nonNegative(used)
	total = nonNegative(total)
	bonus = nonNegative(bonus)

	base := total - used
	if base < 0 {
		base = 0
	}
	remaining := base + bonus
	if remaining > 0 && remaining < DepletionFloorBytes {
		return 0
	}
	return remaining
}

// Evaluate applies the policy to an order in current. It is pure: the same
// inputs always yield the same decision.
func Evaluate(current orderdomain.OrderStatus, used, total, bonus int64) Decision {
	d := Decision{
		UsedBytes:      nonNegative(used),
		RemainingBytes: Remaining(used, total, bonus),
		BonusBytes:     nonNegative(bonus),
	}

	switch current {
	case orderdomain.OrderStatusActive, orderdomain.OrderStatusDepleted:
		d.HasProposal = true
		d.Proposed = orderdomain.OrderStatusActive
		if d.RemainingBytes == 0 {
			d.Proposed = orderdomain.OrderStatusDepleted
		}
		d.Event = eventFor(current, d.Proposed)
	case orderdomain.OrderStatusCompleted:
		d.Event = orderdomain.EventUsageRecorded
	}
	return d
}

// ToEvent builds the lifecycle event for d, or false when there is none.
func (d Decision) ToEvent(sampledAt time.Time) (orderdomain.Event, bool) {
	if d.Event == "" {
		return orderdomain.Event{}, false
	}
	return orderdomain.Event{
		Type: d.Event,
		Usage: &orderdomain.UsageFacts{
			UsedBytes:      d.UsedBytes,
			RemainingBytes: d.RemainingBytes,
			BonusBytes:     d.BonusBytes,
			SampledAt:      sampledAt,
		},
	}, true
}

func eventFor(current, proposed orderdomain.OrderStatus) orderdomain.EventType {
	switch {
	case current == orderdomain.OrderStatusActive && proposed == orderdomain.OrderStatusDepleted:
		return orderdomain.EventUsageDepleted
	case current == orderdomain.OrderStatusDepleted && proposed == orderdomain.OrderStatusActive:
		return orderdomain.EventUsageReplenished
	default:
		return orderdomain.EventUsageRecorded
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
