// Package app composes the fx modules behind each binary.
package app

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/simcore/internal/account"
	"github.com/smallbiznis/simcore/internal/authorization"
	"github.com/smallbiznis/simcore/internal/clock"
	"github.com/smallbiznis/simcore/internal/config"
	"github.com/smallbiznis/simcore/internal/idempotency"
	"github.com/smallbiznis/simcore/internal/ledger"
	"github.com/smallbiznis/simcore/internal/migration"
	"github.com/smallbiznis/simcore/internal/notification"
	"github.com/smallbiznis/simcore/internal/observability"
	"github.com/smallbiznis/simcore/internal/order"
	"github.com/smallbiznis/simcore/internal/plan"
	"github.com/smallbiznis/simcore/internal/providers"
	"github.com/smallbiznis/simcore/internal/provisioning"
	"github.com/smallbiznis/simcore/internal/ratelimit"
	"github.com/smallbiznis/simcore/internal/reconcile"
	"github.com/smallbiznis/simcore/internal/server"
	"github.com/smallbiznis/simcore/internal/simulation"
	"github.com/smallbiznis/simcore/pkg/db"
	"go.uber.org/fx"
)

// Infra is config, logging, telemetry, database, ids and time.
func Infra() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// Domain is everything that reads or moves an order.
func Domain() fx.Option {
	return fx.Options(
		account.Module,
		plan.Module,
		ledger.Module,
		providers.Module,
		order.Module,
		simulation.Module,
		provisioning.Module,
		ratelimit.Module,
	)
}

// API serves webhooks, order reads and admin refunds.
func API() fx.Option {
	return fx.Options(
		Infra(),
		migration.Module,
		Domain(),
		idempotency.Module,
		notification.Module,
		authorization.Module,
		server.Module,
	)
}

// Scheduler runs the reconcile jobs on their cron schedules.
func Scheduler() fx.Option {
	return fx.Options(
		Infra(),
		Domain(),
		reconcile.Module,
		reconcile.CronModule,
	)
}

// Reconcile provides the jobs without scheduling them.
func Reconcile() fx.Option {
	return fx.Options(
		Infra(),
		Domain(),
		reconcile.Module,
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
