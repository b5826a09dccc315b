package plan

import (
	"github.com/smallbiznis/simcore/internal/cache"
	"github.com/smallbiznis/simcore/internal/plan/repository"
	"github.com/smallbiznis/simcore/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	cache.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
