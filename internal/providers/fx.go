package providers

import (
	"github.com/smallbiznis/simcore/internal/providers/email"
	"github.com/smallbiznis/simcore/internal/providers/metering"
	"github.com/smallbiznis/simcore/internal/providers/provisioning"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	provisioning.Module,
	metering.Module,
)
