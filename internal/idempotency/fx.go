package idempotency

import (
	"github.com/smallbiznis/simcore/internal/idempotency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency.gate",
	fx.Provide(service.NewService),
)
