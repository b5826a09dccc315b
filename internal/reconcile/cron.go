package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/simcore/internal/config"
	"go.uber.org/zap"
)

// Runner schedules each reconcile job as its own cron entry. Overlapping
// ticks of the same job are skipped.
type Runner struct {
	cron       *cron.Cron
	reconciler *Reconciler
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(cfg config.Config, reconciler *Reconciler, log *zap.Logger) (*Runner, error) {
	log = log.Named("reconcile.cron")
	cl := cronLogger{log: log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runner := &Runner{
		cron:       c,
		reconciler: reconciler,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	specs := map[string]string{
		JobExpirySweep:      cfg.Schedules.ExpirySweep,
		JobUsageRefresh:     cfg.Schedules.UsageRefresh,
		JobStuckOrders:      cfg.Schedules.StuckOrders,
		JobPaidProvisioning: cfg.Schedules.PaidProvisioning,
	}
	for _, job := range reconciler.Jobs() {
		spec := specs[job.Name]
		if spec == "" {
			log.Info("job disabled", zap.String("job", job.Name))
			continue
		}
		job := job
		if _, err := c.AddFunc(spec, func() { runner.tick(job) }); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s %q: %w", job.Name, spec, err)
		}
		log.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", spec))
	}
	return runner, nil
}

func (r *Runner) tick(job Job) {
	if err := job.Run(r.ctx); err != nil {
		r.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
	}
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries reports how many jobs are scheduled.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
