package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadReadsPartnerSettings(t *testing.T) {
	t.Setenv("PROVISIONING_BASE_URL", "https://partner.example.com/")
	t.Setenv("PROVISIONING_TIMEOUT", "7s")
	t.Setenv("METERING_MAX_BATCH_SIZE", "25")
	t.Setenv("ACTIVATION_READ_HEURISTIC", "off")
	t.Setenv("SIMULATION_USAGE_FRACTION", "0.25")

	cfg := Load()

	assert.Equal(t, "https://partner.example.com", cfg.Provisioning.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.Provisioning.Timeout)
	assert.Equal(t, 25, cfg.Metering.MaxBatchSize)
	assert.False(t, cfg.ActivationReadHeuristic)
	assert.InDelta(t, 0.25, cfg.Simulation.UsageFractionPerUnit, 1e-9)
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("METERING_TIMEOUT", "soon")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	assert.Equal(t, 20*time.Second, cfg.Metering.Timeout)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestReconcileConfigHolderDefaults(t *testing.T) {
	holder, err := NewReconcileConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 10*time.Minute, cfg.GraceWindow)
	assert.Equal(t, 1, cfg.UsageConcurrency)
	assert.True(t, cfg.LeaseEnabled)
}

func TestValidateReconcileConfig(t *testing.T) {
	cfg := DefaultReconcileConfig()
	require.NoError(t, validateReconcileConfig(cfg))

	short := cfg
	short.GraceWindow = 30 * time.Second
	assert.Error(t, validateReconcileConfig(short))

	noBatch := cfg
	noBatch.StuckBatchSize = 0
	assert.Error(t, validateReconcileConfig(noBatch))
}
