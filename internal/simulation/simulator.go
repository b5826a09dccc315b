package simulation

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/simcore/internal/account/domain"
	"github.com/smallbiznis/simcore/internal/config"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SimulatorParams struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	Accounts accountdomain.Service
}

type Simulator struct {
	accounts accountdomain.Service
	params   Params
	log      *zap.Logger
}

func NewSimulator(p SimulatorParams) *Simulator {
	return &Simulator{
		accounts: p.Accounts,
		params: Params{
			ActivationDelay:      p.Cfg.Simulation.ActivationDelay,
			TimeUnit:             p.Cfg.Simulation.TimeUnit,
			UsageFractionPerUnit: p.Cfg.Simulation.UsageFractionPerUnit,
		}.normalized(),
		log: p.Log.Named("simulation"),
	}
}

// Verify reads the test flag from the account store. Callers must invoke it
// immediately before any decision that depends on the flag.
func (s *Simulator) Verify(ctx context.Context, userID snowflake.ID) (bool, error) {
	return s.accounts.IsTestAccount(ctx, userID)
}

// Snapshot returns ok=false for real accounts, whatever the order says.
func (s *Simulator) Snapshot(ctx context.Context, order orderdomain.Order, plan plandomain.Plan, now time.Time) (Snapshot, bool, error) {
	isTest, err := s.Verify(ctx, order.UserID)
	if err != nil {
		return Snapshot{}, false, err
	}
	if !isTest {
		if order.IsTestAccount {
			s.log.Warn("order flagged as test but owner is not a test account",
				zap.String("order_id", order.ID.String()),
				zap.String("user_id", order.UserID.String()),
			)
		}
		return Snapshot{}, false, nil
	}
	if !simulated(order.Status) {
		return Snapshot{}, false, nil
	}
	return Compute(order.CreatedAt, plan.DataGB, plan.ValidityDays, now, s.params), true, nil
}

// simulated excludes orders that never paid or were closed by an operator.
func simulated(status orderdomain.OrderStatus) bool {
	switch status {
	case orderdomain.OrderStatusPending, orderdomain.OrderStatusFailed, orderdomain.OrderStatusRefunded:
		return false
	default:
		return true
	}
}
