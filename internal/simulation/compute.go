// Package simulation derives a full order lifecycle for test accounts from
// the order creation time and the plan, without calling any partner.
package simulation

import (
	"time"

	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
)

type Params struct {
	ActivationDelay      time.Duration
	TimeUnit             time.Duration
	UsageFractionPerUnit float64
}

func DefaultParams() Params {
	return Params{
		ActivationDelay:      2 * time.Minute,
		TimeUnit:             time.Hour,
		UsageFractionPerUnit: 0.1,
	}
}

func (p Params) normalized() Params {
	def := DefaultParams()
	if p.ActivationDelay < 0 {
		p.ActivationDelay = def.ActivationDelay
	}
	if p.TimeUnit <= 0 {
		p.TimeUnit = def.TimeUnit
	}
	if p.UsageFractionPerUnit < 0 {
		p.UsageFractionPerUnit = def.UsageFractionPerUnit
	}
	return p
}

// Snapshot is the simulated view of an order at one instant.
type Snapshot struct {
	Status             orderdomain.OrderStatus
	ActivatedAt        *time.Time
	ExpiresAt          *time.Time
	TotalBytes         int64
	DataUsedBytes      int64
	DataRemainingBytes int64
}

// Compute is pure: the same inputs always give the same snapshot.
func Compute(createdAt time.Time, dataGB decimal.Decimal, validityDays int, now time.Time, params Params) Snapshot {
	params = params.normalized()
	total := dataGB.Mul(decimal.NewFromInt(plandomain.BytesPerGB)).IntPart()
	if total < 0 {
		total = 0
	}

	activatedAt := createdAt.UTC().Add(params.ActivationDelay)
	snap := Snapshot{
		Status:             orderdomain.OrderStatusCompleted,
		TotalBytes:         total,
		DataRemainingBytes: total,
	}
	if now.Before(activatedAt) {
		return snap
	}

	expiresAt := activatedAt.Add(time.Duration(validityDays) * params.TimeUnit)
	snap.ActivatedAt = &activatedAt
	snap.ExpiresAt = &expiresAt

	units := decimal.NewFromInt(int64(now.Sub(activatedAt))).Div(decimal.NewFromInt(int64(params.TimeUnit)))
	used := decimal.NewFromInt(total).
		Mul(decimal.NewFromFloat(params.UsageFractionPerUnit)).
		Mul(units).
		IntPart()
	if used > total {
		used = total
	}
	snap.DataUsedBytes = used
	snap.DataRemainingBytes = total - used

	switch {
	case now.After(expiresAt):
		snap.Status = orderdomain.OrderStatusExpired
	case used >= total:
		snap.Status = orderdomain.OrderStatusDepleted
	default:
		snap.Status = orderdomain.OrderStatusActive
	}
	return snap
}

// Apply overlays the snapshot on a copy of the order.
func (s Snapshot) Apply(order orderdomain.Order) orderdomain.Order {
	order.Status = s.Status
	order.ActivatedAt = s.ActivatedAt
	order.DataUsedBytes = s.DataUsedBytes
	order.DataRemainingBytes = s.DataRemainingBytes
	if s.Status == orderdomain.OrderStatusExpired {
		order.ExpiredAt = s.ExpiresAt
	}
	return order
}
