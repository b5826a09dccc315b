package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Outcome classifies what processing a notification did to its order.
type Outcome string

const (
	OutcomePending           Outcome = "pending"
	OutcomeApplied           Outcome = "applied"
	OutcomeNoop              Outcome = "noop"
	OutcomeIllegalTransition Outcome = "illegal_transition"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeError             Outcome = "error"
)

// AdmitResult is the gate verdict for one notification.
type AdmitResult string

const (
	Accepted  AdmitResult = "accepted"
	Duplicate AdmitResult = "duplicate"
)

// Receipt is the durable trace of a notification passing the gate.
type Receipt struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	Source         string         `gorm:"type:text;not null"`
	NotificationID string         `gorm:"type:text;not null"`
	EventType      string         `gorm:"type:text;not null"`
	OrderID        *snowflake.ID  `gorm:""`
	Outcome        Outcome        `gorm:"type:text;not null;default:pending"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	ReceivedAt     time.Time      `gorm:"not null"`
	ProcessedAt    *time.Time     `gorm:""`
}

func (Receipt) TableName() string { return "notification_receipts" }
