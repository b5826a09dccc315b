package ledger

import (
	ledgerdomain "github.com/smallbiznis/simcore/internal/ledger/domain"
	"github.com/smallbiznis/simcore/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(service.NewService),
	fx.Provide(
		func(s *service.Service) ledgerdomain.CommissionLedger { return s },
		func(s *service.Service) ledgerdomain.BonusLedger { return s },
	),
)
