package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/providers/metering"
	"github.com/smallbiznis/simcore/internal/usage/policy"
	"golang.org/x/sync/errgroup"
)

// usageRefresh pulls usage for metered orders one batch at a time. A batch
// whose metering call fails is logged and the sweep moves on.
func (r *Reconciler) usageRefresh(ctx context.Context, run *jobRun) error {
	limit := run.tuning.UsageBatchLimit
	if maxBatch := r.metering.MaxBatchSize(); maxBatch > 0 && (limit <= 0 || limit > maxBatch) {
		limit = maxBatch
	}

	var (
		afterID snowflake.ID
		errs    []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		orders, err := r.repo.ListMeteringCandidates(ctx, r.db, afterID, limit)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		if len(orders) == 0 {
			break
		}
		afterID = orders[len(orders)-1].ID

		if err := r.refreshBatch(ctx, run, orders); err != nil {
			errs = append(errs, err)
		}
		if len(orders) < limit {
			break
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) refreshBatch(ctx context.Context, run *jobRun, orders []orderdomain.Order) error {
	refs := make([]string, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, *order.TransactionRef)
	}

	samples, err := r.metering.GetUsage(ctx, refs)
	if err != nil {
		r.metrics.IncPartnerError("metering", err)
		r.logBatchError(ctx, run, len(refs), err)
		return fmt.Errorf("metering batch: %w", err)
	}
	byRef := make(map[string]metering.Sample, len(samples))
	for _, sample := range samples {
		byRef[sample.TransactionRef] = sample
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	concurrency := run.tuning.UsageConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g.SetLimit(concurrency)
	for _, order := range orders {
		order := order
		sample, ok := byRef[*order.TransactionRef]
		if !ok {
			r.metrics.IncOrderProcessed(run.job, obsmetrics.OutcomeSkipped)
			continue
		}
		g.Go(func() error {
			if err := r.processOrder(gctx, run, order, func(ctx context.Context) (string, error) {
				return r.applyUsage(ctx, order, sample)
			}); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Reconciler) applyUsage(ctx context.Context, order orderdomain.Order, sample metering.Sample) (string, error) {
	bonus, err := r.bonus.CreditedBytes(ctx, order.ID)
	if err != nil {
		return obsmetrics.OutcomeFailed, fmt.Errorf("bonus credits: %w", err)
	}
	total, err := r.totalBytes(ctx, order, sample)
	if err != nil {
		return obsmetrics.OutcomeFailed, err
	}

	var events []orderdomain.Event
	current := order.Status
	if current == orderdomain.OrderStatusCompleted && sample.BytesUsed > 0 {
		events = append(events, orderdomain.Event{
			Type:             orderdomain.EventProfileActivated,
			ActivationSource: orderdomain.ActivationSourceUsageObserved,
		})
		current = orderdomain.OrderStatusActive
	}

	decision := policy.Evaluate(current, sample.BytesUsed, total, bonus)
	if event, ok := decision.ToEvent(sample.SampledAt); ok {
		events = append(events, event)
	}
	if len(events) == 0 {
		return obsmetrics.OutcomeSkipped, nil
	}

	res, err := r.orders.Apply(ctx, order.ID, events...)
	if err != nil {
		return obsmetrics.OutcomeFailed, err
	}
	return outcomeOf(res), nil
}

// totalBytes prefers the allowance the partner reports, which already
// includes applied top-ups. Without it the catalog plan plus every completed
// top-up is used.
func (r *Reconciler) totalBytes(ctx context.Context, order orderdomain.Order, sample metering.Sample) (int64, error) {
	if sample.BytesTotal > 0 {
		return sample.BytesTotal, nil
	}
	plan, err := r.plans.Get(ctx, order.PlanID)
	if err != nil {
		return 0, fmt.Errorf("plan lookup: %w", err)
	}
	total := plan.TotalBytes()

	topUps, err := r.repo.ListCompletedTopUps(ctx, r.db, order.ID)
	if err != nil {
		return 0, fmt.Errorf("top-ups: %w", err)
	}
	for _, topUp := range topUps {
		topUpPlan, err := r.plans.Get(ctx, topUp.PlanID)
		if err != nil {
			return 0, fmt.Errorf("top-up plan lookup: %w", err)
		}
		total += topUpPlan.TotalBytes()
	}
	return total, nil
}
