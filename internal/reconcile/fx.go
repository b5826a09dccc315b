package reconcile

import (
	"context"

	"github.com/smallbiznis/simcore/internal/provisioning"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(
		New,
		provideProvisioner,
	),
)

func provideProvisioner(s *provisioning.Service) Provisioner {
	return s
}

// CronModule runs the jobs on their schedules for the life of the app.
var CronModule = fx.Module("reconcile.cron",
	fx.Provide(NewRunner),
	fx.Invoke(registerRunner),
)

func registerRunner(lc fx.Lifecycle, runner *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runner.Start()
			return nil
		},
		OnStop: runner.Stop,
	})
}
