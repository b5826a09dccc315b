package reconcile

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/provisioning"
)

// stuckOrders re-polls the partner for orders left in provisioning past the
// grace window.
func (r *Reconciler) stuckOrders(ctx context.Context, run *jobRun) error {
	cutoff := r.now().Add(-run.tuning.GraceWindow)
	orders, err := r.repo.ListStuckProvisioning(ctx, r.db, cutoff, run.tuning.StuckBatchSize)
	if err != nil {
		return err
	}
	return r.eachProvisioning(ctx, run, orders, r.provisioner.Recover)
}

// paidProvisioning retries createOrder for paid orders the partner never
// acknowledged.
func (r *Reconciler) paidProvisioning(ctx context.Context, run *jobRun) error {
	cutoff := r.now().Add(-run.tuning.GraceWindow)
	orders, err := r.repo.ListPaidUnprovisioned(ctx, r.db, cutoff, run.tuning.StuckBatchSize)
	if err != nil {
		return err
	}
	return r.eachProvisioning(ctx, run, orders, r.provisioner.Provision)
}

func (r *Reconciler) eachProvisioning(
	ctx context.Context,
	run *jobRun,
	orders []orderdomain.Order,
	fn func(context.Context, orderdomain.Order) (provisioning.Outcome, error),
) error {
	var errs []error
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		order := order
		if err := r.processOrder(ctx, run, order, func(ctx context.Context) (string, error) {
			outcome, err := fn(ctx, order)
			if err != nil {
				r.metrics.IncPartnerError("provisioning", err)
				return obsmetrics.OutcomeFailed, err
			}
			return provisioningOutcome(outcome), nil
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func provisioningOutcome(outcome provisioning.Outcome) string {
	switch outcome {
	case provisioning.OutcomeAccepted, provisioning.OutcomeCompleted, provisioning.OutcomeFailed:
		return obsmetrics.OutcomeApplied
	case provisioning.OutcomeSkipped:
		return obsmetrics.OutcomeSkipped
	default:
		return obsmetrics.OutcomeNoop
	}
}
