package provisioning

import (
	"github.com/smallbiznis/simcore/internal/simulation"
	"go.uber.org/fx"
)

var Module = fx.Module("provisioning.service",
	fx.Provide(
		fx.Annotate(
			func(s *simulation.Simulator) *simulation.Simulator { return s },
			fx.As(new(TestAccountVerifier)),
		),
		NewService,
	),
)
