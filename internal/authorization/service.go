// Package authorization guards operator actions with a casbin RBAC policy.
// Roles come from the operators table; policies are seeded at startup and
// persisted through the gorm adapter.
package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize returns nil when actor may perform action on object.
	Authorize(ctx context.Context, actor string, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
