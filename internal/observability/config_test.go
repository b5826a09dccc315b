package observability

import (
	"testing"

	"github.com/smallbiznis/simcore/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("LOG_FORMAT", "")

	cfg := LoadConfig(config.Config{Environment: "production", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "simcore", cfg.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Export.Enabled)
	assert.Equal(t, "collector:4317", cfg.Export.Endpoint)
	assert.Equal(t, 0.1, cfg.Export.SamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("LOG_FORMAT", "Console")

	cfg := LoadConfig(config.Config{AppName: "simcore-api", Environment: "dev"})

	assert.Equal(t, "simcore-api", cfg.ServiceName)
	assert.True(t, cfg.Export.Enabled)
	assert.Equal(t, 0.5, cfg.Export.SamplingRatio)
	assert.Equal(t, "http", cfg.Export.Protocol)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Debug())
}

func TestLoadConfig_IgnoresOutOfRangeRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "4")
	assert.Equal(t, 0.1, LoadConfig(config.Config{}).Export.SamplingRatio)
}
