package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Plan, error)
	GetBySKU(ctx context.Context, sku string) (*Plan, error)
}

var (
	ErrInvalidPlan  = errors.New("invalid_plan")
	ErrPlanNotFound = errors.New("plan_not_found")
)
