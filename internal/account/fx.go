package account

import (
	"github.com/smallbiznis/simcore/internal/account/repository"
	"github.com/smallbiznis/simcore/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
