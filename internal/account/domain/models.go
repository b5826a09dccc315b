package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is the storefront user who owns orders. It is the authoritative
// source of the test-account flag.
type Account struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Email         string       `gorm:"not null" json:"email"`
	IsTestAccount bool         `gorm:"not null;default:false" json:"is_test_account"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Account) TableName() string { return "users" }
