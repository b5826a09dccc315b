package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Account, error)
	// IsTestAccount reads the flag from the store on every call.
	IsTestAccount(ctx context.Context, id snowflake.ID) (bool, error)
}

var (
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrAccountNotFound = errors.New("account_not_found")
)
