// Package reconcile runs the periodic jobs that move orders forward when no
// notification does: expiry, usage refresh, stuck-order recovery and paid
// order provisioning retry.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/simcore/internal/clock"
	"github.com/smallbiznis/simcore/internal/config"
	ledgerdomain "github.com/smallbiznis/simcore/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"github.com/smallbiznis/simcore/internal/provisioning"
	"github.com/smallbiznis/simcore/internal/providers/metering"
	"github.com/smallbiznis/simcore/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpirySweep      = "expiry_sweep"
	JobUsageRefresh     = "usage_refresh"
	JobStuckOrders      = "stuck_orders"
	JobPaidProvisioning = "paid_provisioning"
)

// leaseSlack keeps the lease alive a little past the run deadline so a slow
// release never lets a second instance start while the first is unwinding.
const leaseSlack = 30 * time.Second

var ErrUnknownJob = errors.New("unknown_reconcile_job")

// Provisioner is the provisioning service surface the jobs drive.
type Provisioner interface {
	Provision(ctx context.Context, order orderdomain.Order) (provisioning.Outcome, error)
	Recover(ctx context.Context, order orderdomain.Order) (provisioning.Outcome, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        orderdomain.Repository
	Orders      orderdomain.Service
	Plans       plandomain.Service
	Provisioner Provisioner
	Metering    metering.Client
	Bonus       ledgerdomain.BonusLedger
	Tuning      *config.ReconcileConfigHolder

	Lease   *ratelimit.JobLease          `optional:"true"`
	Metrics *obsmetrics.ReconcileMetrics `optional:"true"`
}

type Reconciler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        orderdomain.Repository
	orders      orderdomain.Service
	plans       plandomain.Service
	provisioner Provisioner
	metering    metering.Client
	bonus       ledgerdomain.BonusLedger
	tuning      *config.ReconcileConfigHolder
	lease       *ratelimit.JobLease
	metrics     *obsmetrics.ReconcileMetrics
}

func New(p Params) *Reconciler {
	tuning := p.Tuning
	if tuning == nil {
		tuning = config.NewStaticReconcileConfigHolder(config.DefaultReconcileConfig())
	}
	return &Reconciler{
		db:          p.DB,
		log:         p.Log.Named("reconcile").With(zap.String("component", "reconcile")),
		clock:       p.Clock,
		repo:        p.Repo,
		orders:      p.Orders,
		plans:       p.Plans,
		provisioner: p.Provisioner,
		metering:    p.Metering,
		bonus:       p.Bonus,
		tuning:      tuning,
		lease:       p.Lease,
		metrics:     p.Metrics,
	}
}

// Job is one named reconcile pass.
type Job struct {
	Name string
	Run  func(context.Context) error
}

func (r *Reconciler) Jobs() []Job {
	return []Job{
		{Name: JobExpirySweep, Run: r.ExpirySweep},
		{Name: JobUsageRefresh, Run: r.UsageRefresh},
		{Name: JobStuckOrders, Run: r.StuckOrders},
		{Name: JobPaidProvisioning, Run: r.PaidProvisioning},
	}
}

// RunOnce runs the named job synchronously under its lease and timeout.
func (r *Reconciler) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.Jobs() {
		if job.Name == name {
			return job.Run(ctx)
		}
	}
	return fmt.Errorf("%s: %w", name, ErrUnknownJob)
}

func (r *Reconciler) ExpirySweep(ctx context.Context) error {
	return r.runJob(ctx, JobExpirySweep, r.expirySweep)
}

func (r *Reconciler) UsageRefresh(ctx context.Context) error {
	return r.runJob(ctx, JobUsageRefresh, r.usageRefresh)
}

func (r *Reconciler) StuckOrders(ctx context.Context) error {
	return r.runJob(ctx, JobStuckOrders, r.stuckOrders)
}

func (r *Reconciler) PaidProvisioning(ctx context.Context) error {
	return r.runJob(ctx, JobPaidProvisioning, r.paidProvisioning)
}

func (r *Reconciler) runJob(parent context.Context, name string, fn func(context.Context, *jobRun) error) error {
	tuning := r.tuning.Get()
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, tuning.JobTimeout)
	defer cancel()

	if tuning.LeaseEnabled && r.lease.Enabled() {
		lease, ok, err := r.lease.Acquire(ctx, name, tuning.JobTimeout+leaseSlack)
		if err != nil {
			r.metrics.IncJobLease(name, obsmetrics.LeaseOutcomeError)
			return fmt.Errorf("%s: acquire lease: %w", name, err)
		}
		if !ok {
			r.metrics.IncJobLease(name, obsmetrics.LeaseOutcomeHeld)
			r.log.Debug("lease held by another instance", zap.String("job", name))
			return nil
		}
		r.metrics.IncJobLease(name, obsmetrics.LeaseOutcomeAcquired)
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			switch err := lease.Release(releaseCtx); {
			case errors.Is(err, ratelimit.ErrLeaseLost):
				r.log.Warn("lease expired before the job finished", zap.String("job", name), zap.String("lease", lease.Token()))
			case err != nil:
				r.log.Warn("lease release failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	ctx, run := r.startRun(ctx, name, tuning)
	r.logJobStart(ctx, run)
	r.metrics.IncJobRun(name)

	err := fn(ctx, run)
	r.metrics.ObserveJobDuration(name, time.Since(start))
	// Order-level failures were counted where they happened.
	orderErrors := run.errors()
	if err != nil && orderErrors == 0 {
		run.IncError()
	}
	r.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		r.metrics.IncJobTimeout(name)
	}
	if orderErrors == 0 {
		r.metrics.IncJobError(name, err)
	}
	if isTimeout {
		r.logger(ctx, run).Warn("job timed out",
			zap.Duration("timeout", tuning.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// processOrder runs fn for one order under the per-order timeout. Errors are
// logged, counted and returned for joining; they never stop the run.
func (r *Reconciler) processOrder(ctx context.Context, run *jobRun, order orderdomain.Order, fn func(context.Context) (string, error)) error {
	orderCtx, cancel := context.WithTimeout(ctx, run.tuning.OrderTimeout)
	defer cancel()

	outcome, err := fn(orderCtx)
	if err != nil {
		r.metrics.IncOrderProcessed(run.job, obsmetrics.OutcomeFailed)
		r.metrics.IncJobError(run.job, err)
		r.logOrderError(ctx, run, order, err)
		return fmt.Errorf("order %s: %w", order.ID, err)
	}
	r.metrics.IncOrderProcessed(run.job, outcome)
	run.AddProcessed(1)
	return nil
}

func outcomeOf(res orderdomain.TransitionResult) string {
	if res.Applied {
		return obsmetrics.OutcomeApplied
	}
	return obsmetrics.OutcomeNoop
}

func (r *Reconciler) now() time.Time {
	return r.clock.Now().UTC()
}
