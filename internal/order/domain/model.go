// Package domain contains the order record and the lifecycle vocabulary shared
// by notification intake, reconcile jobs and the read path.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus represents lifecycle states for an order.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusPaid         OrderStatus = "paid"
	OrderStatusProvisioning OrderStatus = "provisioning"
	OrderStatusCompleted    OrderStatus = "completed"
	OrderStatusActive       OrderStatus = "active"
	OrderStatusDepleted     OrderStatus = "depleted"
	OrderStatusExpired      OrderStatus = "expired"
	OrderStatusFailed       OrderStatus = "failed"
	OrderStatusRefunded     OrderStatus = "refunded"
)

// ActivationSource records which signal moved an order into active.
type ActivationSource string

const (
	ActivationSourcePartnerEvent  ActivationSource = "partner_event"
	ActivationSourceUsageObserved ActivationSource = "usage_observed"
	ActivationSourceDetailRead    ActivationSource = "detail_read"
)

// Order is the local record of truth for one purchased data profile.
type Order struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	UserID snowflake.ID `gorm:"not null;index"`
	PlanID snowflake.ID `gorm:"not null"`
	Status OrderStatus  `gorm:"type:text;not null"`

	PaymentProvider  *string    `gorm:"type:text"`
	PaymentReference *string    `gorm:"type:text"`
	Amount           int64      `gorm:"not null;default:0"`
	Currency         string     `gorm:"type:text;not null"`
	PaidAt           *time.Time `gorm:""`

	PartnerOrderRef       *string    `gorm:"type:text"`
	ICCID                 *string    `gorm:"column:iccid;type:text"`
	TransactionRef        *string    `gorm:"type:text"`
	SMDPAddress           *string    `gorm:"column:smdp_address;type:text"`
	ActivationCode        *string    `gorm:"type:text"`
	InstallURL            *string    `gorm:"column:install_url;type:text"`
	ProvisioningStartedAt *time.Time `gorm:""`
	FailureReason         *string    `gorm:"type:text"`

	DataUsedBytes      int64      `gorm:"not null;default:0"`
	DataRemainingBytes int64      `gorm:"not null;default:0"`
	BonusBytes         int64      `gorm:"not null;default:0"`
	UsageUpdatedAt     *time.Time `gorm:""`

	IsTopup          bool              `gorm:"not null;default:false"`
	ParentOrderID    *snowflake.ID     `gorm:""`
	IsTestAccount    bool              `gorm:"not null;default:false"`
	ActivationSource *ActivationSource `gorm:"type:text"`

	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
	ActivatedAt *time.Time `gorm:""`
	CompletedAt *time.Time `gorm:""`
	ExpiredAt   *time.Time `gorm:""`
	RefundedAt  *time.Time `gorm:""`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// IsTerminal reports whether no automatic event can move the order further.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusExpired, OrderStatusFailed, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// HasActivationDetails reports whether the profile install data is known.
func (o Order) HasActivationDetails() bool {
	return o.SMDPAddress != nil && *o.SMDPAddress != "" &&
		o.ActivationCode != nil && *o.ActivationCode != ""
}

// ExpiresAt returns the end of validity, or nil while the profile has not
// been activated.
func (o Order) ExpiresAt(validityDays int) *time.Time {
	if o.ActivatedAt == nil || validityDays <= 0 {
		return nil
	}
	at := o.ActivatedAt.Add(time.Duration(validityDays) * 24 * time.Hour)
	return &at
}

// IsValidStatus reports whether s names a known lifecycle state.
func IsValidStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProvisioning,
		OrderStatusCompleted, OrderStatusActive, OrderStatusDepleted,
		OrderStatusExpired, OrderStatusFailed, OrderStatusRefunded:
		return true
	default:
		return false
	}
}
