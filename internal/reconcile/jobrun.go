package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/simcore/internal/config"
	obscontext "github.com/smallbiznis/simcore/internal/observability/context"
	obslogger "github.com/smallbiznis/simcore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type jobRun struct {
	job       string
	runID     string
	tuning    config.ReconcileConfig
	startedAt time.Time

	mu             sync.Mutex
	processedCount int
	errorCount     int
}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.mu.Lock()
	r.processedCount += count
	r.mu.Unlock()
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.errorCount++
	r.mu.Unlock()
}

func (r *jobRun) processed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processedCount
}

func (r *jobRun) errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount
}

func (r *Reconciler) startRun(ctx context.Context, job string, tuning config.ReconcileConfig) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     correlation.NewID(),
		tuning:    tuning,
		startedAt: time.Now(),
	}
	ctx = obscontext.WithCorrelationID(ctx, run.runID)
	ctx = obscontext.WithActor(ctx, "system", "reconcile")
	return ctx, run
}

func (r *Reconciler) logger(ctx context.Context, run *jobRun) *zap.Logger {
	return obslogger.WithJob(obslogger.WithContext(ctx, r.log), run.job, run.runID)
}

func (r *Reconciler) logJobStart(ctx context.Context, run *jobRun) {
	r.logger(ctx, run).Info("reconcile.job.start")
}

func (r *Reconciler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed()),
		zap.Int("error_count", run.errors()),
	}
	log := r.logger(ctx, run)
	if run.errors() > 0 {
		log.Warn("reconcile.job.finish", fields...)
		return
	}
	log.Info("reconcile.job.finish", fields...)
}

func (r *Reconciler) logOrderError(ctx context.Context, run *jobRun, order orderdomain.Order, err error) {
	run.IncError()
	obslogger.WithOrder(r.logger(ctx, run), order.ID.String()).Error("reconcile.order.failed",
		zap.String("status", string(order.Status)),
		zap.String("error_type", obsmetrics.ClassifyReason(err)),
		zap.Bool("retryable", obsmetrics.IsRetryable(err)),
		zap.Error(err),
	)
}

func (r *Reconciler) logBatchError(ctx context.Context, run *jobRun, size int, err error) {
	run.IncError()
	r.logger(ctx, run).Error("reconcile.batch.failed",
		zap.Int("batch_size", size),
		zap.String("error_type", obsmetrics.ClassifyReason(err)),
		zap.Error(err),
	)
}
