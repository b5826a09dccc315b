package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateOrderRequest opens a pending order for a catalog plan. Top-ups name
// the order they extend.
type CreateOrderRequest struct {
	UserID        snowflake.ID
	PlanID        snowflake.ID
	ParentOrderID *snowflake.ID
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	// Apply drives the order through events in order inside one transaction.
	// A lost compare-and-swap race is reported as Applied=false, not an error.
	Apply(ctx context.Context, orderID snowflake.ID, events ...Event) (TransitionResult, error)
	GetByID(ctx context.Context, orderID snowflake.ID) (*Order, error)
}

// Effects receives committed transitions and forwards them to downstream
// collaborators such as the commission ledger and mail dispatch.
type Effects interface {
	OnTransition(ctx context.Context, order Order, step Transition)
}
