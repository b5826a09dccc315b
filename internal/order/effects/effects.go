// Package effects forwards committed order transitions to the collaborators
// that react to them. Failures are logged; the transition itself is already
// durable.
package effects

import (
	"context"
	"fmt"
	"strings"

	accountdomain "github.com/smallbiznis/simcore/internal/account/domain"
	ledgerdomain "github.com/smallbiznis/simcore/internal/ledger/domain"
	"github.com/smallbiznis/simcore/internal/observability/logger"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/smallbiznis/simcore/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Commission ledgerdomain.CommissionLedger
	Accounts   accountdomain.Service
	Mailer     email.Provider
}

type Dispatcher struct {
	log        *zap.Logger
	commission ledgerdomain.CommissionLedger
	accounts   accountdomain.Service
	mailer     email.Provider
}

func New(p Params) *Dispatcher {
	return &Dispatcher{
		log:        p.Log.Named("order.effects"),
		commission: p.Commission,
		accounts:   p.Accounts,
		mailer:     p.Mailer,
	}
}

func (d *Dispatcher) OnTransition(ctx context.Context, order orderdomain.Order, step orderdomain.Transition) {
	if step.From == step.To {
		return
	}
	log := logger.WithOrder(logger.WithContext(ctx, d.log), order.ID.String()).With(
		zap.String("event", string(step.Event)),
		zap.String("to", string(step.To)),
	)

	switch step.To {
	case orderdomain.OrderStatusPaid:
		if order.IsTestAccount {
			return
		}
		if err := d.commission.Accrue(ctx, order.ID, order.Amount, order.Currency); err != nil {
			log.Error("commission accrue failed", zap.Error(err))
		}
	case orderdomain.OrderStatusRefunded:
		if err := d.commission.Void(ctx, order.ID); err != nil {
			log.Error("commission void failed", zap.Error(err))
		}
	case orderdomain.OrderStatusCompleted:
		if order.IsTopup {
			if err := d.sendTopUpMail(ctx, order); err != nil {
				log.Error("top-up mail failed", zap.Error(err))
			}
			return
		}
		if err := d.sendReadyMail(ctx, order); err != nil {
			log.Error("ready mail failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) sendReadyMail(ctx context.Context, order orderdomain.Order) error {
	if !order.HasActivationDetails() {
		return orderdomain.ErrIncompleteActivation
	}
	account, err := d.accounts.Get(ctx, order.UserID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(account.Email) == "" {
		return nil
	}
	return d.mailer.Send(ctx, []string{account.Email}, "Your eSIM is ready", readyMailBody(order))
}

func (d *Dispatcher) sendTopUpMail(ctx context.Context, order orderdomain.Order) error {
	account, err := d.accounts.Get(ctx, order.UserID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(account.Email) == "" {
		return nil
	}
	body := "Your top-up " + order.ID.String() + " has been added"
	if order.ParentOrderID != nil {
		body += " to the eSIM from order " + order.ParentOrderID.String()
	}
	body += ".\n\nNo reinstall is needed. The extra data is available on your existing profile.\n"
	return d.mailer.Send(ctx, []string{account.Email}, "Your eSIM top-up is active", body)
}

func readyMailBody(order orderdomain.Order) string {
	var b strings.Builder
	b.WriteString("Your eSIM for order " + order.ID.String() + " is ready to install.\n\n")
	fmt.Fprintf(&b, "SM-DP+ address: %s\n", *order.SMDPAddress)
	fmt.Fprintf(&b, "Activation code: %s\n", *order.ActivationCode)
	fmt.Fprintf(&b, "LPA string: LPA:1$%s$%s\n", *order.SMDPAddress, *order.ActivationCode)
	if order.InstallURL != nil && *order.InstallURL != "" {
		fmt.Fprintf(&b, "Install link: %s\n", *order.InstallURL)
	}
	b.WriteString("\nThe validity period starts when the profile is first used on a device.\n")
	return b.String()
}
