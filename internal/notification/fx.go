package notification

import (
	"github.com/smallbiznis/simcore/internal/notification/adapters"
	"github.com/smallbiznis/simcore/internal/notification/service"
	"github.com/smallbiznis/simcore/internal/provisioning"
	"github.com/smallbiznis/simcore/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.intake",
	fx.Provide(adapters.NewFromConfig),
	fx.Provide(
		func(s *provisioning.Service) service.Provisioner { return s },
		func(l *ratelimit.IntakeLimiter) service.Limiter { return l },
	),
	fx.Provide(service.NewService),
)
