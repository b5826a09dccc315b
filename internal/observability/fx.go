package observability

import (
	"github.com/smallbiznis/simcore/internal/observability/logger"
	"github.com/smallbiznis/simcore/internal/observability/metrics"
	"github.com/smallbiznis/simcore/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires the zap logger, the tracer provider and the order metrics.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:   cfg.ServiceName,
				Environment:   cfg.Environment,
				Version:       cfg.Version,
				Level:         cfg.Log.Level,
				Format:        cfg.Log.Format,
				Debug:         cfg.Debug(),
				StackOnErrors: cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Export.Enabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Export.Endpoint,
				ExporterProtocol: cfg.Export.Protocol,
				SamplingRatio:    cfg.Export.SamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.Export.Enabled,
				ExporterEndpoint: cfg.Export.Endpoint,
				ExporterProtocol: cfg.Export.Protocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.ReconcileWithConfig,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
