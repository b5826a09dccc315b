package reconcile

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

// expirySweep walks activated orders by id and expires those past validity.
func (r *Reconciler) expirySweep(ctx context.Context, run *jobRun) error {
	batchSize := run.tuning.ExpiryBatchSize
	now := r.now()

	var (
		afterID snowflake.ID
		errs    []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		candidates, err := r.repo.ListExpiryCandidates(ctx, r.db, afterID, batchSize)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		if len(candidates) == 0 {
			break
		}
		for _, candidate := range candidates {
			afterID = candidate.ID
			expiresAt := candidate.Order.ExpiresAt(candidate.ValidityDays)
			if expiresAt == nil || !now.After(*expiresAt) {
				continue
			}
			candidate := candidate
			if err := r.processOrder(ctx, run, candidate.Order, func(ctx context.Context) (string, error) {
				res, err := r.orders.Apply(ctx, candidate.ID, orderdomain.Event{
					Type:         orderdomain.EventOrderExpired,
					ValidityDays: candidate.ValidityDays,
				})
				if err != nil {
					return obsmetrics.OutcomeFailed, err
				}
				return outcomeOf(res), nil
			}); err != nil {
				errs = append(errs, err)
			}
		}
		if len(candidates) < batchSize {
			break
		}
	}
	return errors.Join(errs...)
}
