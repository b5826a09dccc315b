package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/simcore/internal/app"
	"github.com/smallbiznis/simcore/internal/config"
	"github.com/smallbiznis/simcore/internal/migration"
	"github.com/smallbiznis/simcore/internal/observability"
	"github.com/smallbiznis/simcore/internal/reconcile"
	"github.com/smallbiznis/simcore/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const startTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "simcore",
		Short:         "eSIM order lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newReconcileCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve webhooks, order reads and admin refunds over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fxApp := fx.New(app.API())
			if err := fxApp.Err(); err != nil {
				return err
			}
			fxApp.Run()
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var once string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the reconcile jobs on their schedules, or one job with --once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			once = strings.TrimSpace(once)
			if once == "" {
				fxApp := fx.New(app.Scheduler())
				if err := fxApp.Err(); err != nil {
					return err
				}
				fxApp.Run()
				return nil
			}
			return runOnce(cmd.Context(), once)
		},
	}
	cmd.Flags().StringVar(&once, "once", "", fmt.Sprintf("run a single job and exit (%s)", strings.Join(jobNames(), ", ")))
	return cmd
}

func runOnce(ctx context.Context, job string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reconciler *reconcile.Reconciler
	fxApp := fx.New(app.Reconcile(), fx.Populate(&reconciler), fx.NopLogger)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		_ = fxApp.Stop(stopCtx)
	}()

	return reconciler.RunOnce(ctx, job)
}

func newMigrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if args[0] == "down" {
					return migration.RollbackMigrations(sqlDB, steps)
				}
				return migration.RunMigrations(sqlDB)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func withDatabase(ctx context.Context, fn func(*gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var conn *gorm.DB
	fxApp := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(&conn),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		_ = fxApp.Stop(stopCtx)
	}()
	return fn(conn)
}

func jobNames() []string {
	return []string{
		reconcile.JobExpirySweep,
		reconcile.JobUsageRefresh,
		reconcile.JobStuckOrders,
		reconcile.JobPaidProvisioning,
	}
}
