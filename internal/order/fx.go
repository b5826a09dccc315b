package order

import (
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/order/effects"
	"github.com/smallbiznis/simcore/internal/order/repository"
	"github.com/smallbiznis/simcore/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(effects.New, fx.As(new(orderdomain.Effects))),
	),
	fx.Provide(service.NewService),
)
