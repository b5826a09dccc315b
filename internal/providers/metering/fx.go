package metering

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

var Module = fx.Module("providers.metering",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(p Params) Client {
	return NewHTTPClient(Config{
		BaseURL:      p.Cfg.Metering.BaseURL,
		APIKey:       p.Cfg.Metering.APIKey,
		Timeout:      p.Cfg.Metering.Timeout,
		MaxBatchSize: p.Cfg.Metering.MaxBatchSize,
	}, p.Log, p.Metrics)
}
