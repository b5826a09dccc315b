package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/simcore/internal/config"
)

// Config is the telemetry view of the process configuration. Values from
// config.Config win unless the OTEL_* / LOG_FORMAT overrides are set.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Log    LogSettings
	Export ExportSettings
}

type LogSettings struct {
	Level  string
	Format string
}

// ExportSettings drives both the trace and the metric OTLP exporters.
type ExportSettings struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName: firstNonEmpty(cfg.AppName, "simcore"),
		Environment: firstNonEmpty(os.Getenv("DEPLOYMENT_ENV"), cfg.Environment),
		Version:     firstNonEmpty(os.Getenv("SERVICE_VERSION"), cfg.AppVersion),
		Log: LogSettings{
			Level:  firstNonEmpty(cfg.LogLevel, "info"),
			Format: strings.ToLower(firstNonEmpty(os.Getenv("LOG_FORMAT"), "json")),
		},
		Export: ExportSettings{
			Enabled:       envBool("OTEL_ENABLED"),
			Endpoint:      firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
			Protocol:      strings.ToLower(firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"), cfg.OTLPProtocol)),
			SamplingRatio: 0.1,
		},
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio >= 0 && ratio <= 1 {
			out.Export.SamplingRatio = ratio
		}
	}
	return out
}

// Debug is true for debug log level and for non-production environments.
func (c Config) Debug() bool {
	if strings.EqualFold(c.Log.Level, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) bool {
	enabled, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && enabled
}
