package provisioning

import (
	"github.com/smallbiznis/simcore/internal/config"
	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

var Module = fx.Module("providers.provisioning",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(p Params) Client {
	return NewHTTPClient(Config{
		BaseURL: p.Cfg.Provisioning.BaseURL,
		APIKey:  p.Cfg.Provisioning.APIKey,
		Timeout: p.Cfg.Provisioning.Timeout,
	}, p.Log, p.Metrics)
}
