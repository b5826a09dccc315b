package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReconcileConfig holds tuning for the reconcile jobs that operators may
// change without a restart.
type ReconcileConfig struct {
	GraceWindow      time.Duration `mapstructure:"graceWindow"`
	ExpiryBatchSize  int           `mapstructure:"expiryBatchSize"`
	UsageBatchLimit  int           `mapstructure:"usageBatchLimit"`
	StuckBatchSize   int           `mapstructure:"stuckBatchSize"`
	UsageConcurrency int           `mapstructure:"usageConcurrency"`
	JobTimeout       time.Duration `mapstructure:"jobTimeout"`
	OrderTimeout     time.Duration `mapstructure:"orderTimeout"`
	LeaseEnabled     bool          `mapstructure:"leaseEnabled"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		GraceWindow:      10 * time.Minute,
		ExpiryBatchSize:  500,
		UsageBatchLimit:  20,
		StuckBatchSize:   100,
		UsageConcurrency: 1,
		JobTimeout:       5 * time.Minute,
		OrderTimeout:     30 * time.Second,
		LeaseEnabled:     true,
	}
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

// NewStaticReconcileConfigHolder returns a holder that never reloads.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconcileConfigHolder(log *zap.Logger) (*ReconcileConfigHolder, error) {
	log = log.Named("config.reconcile")
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yaml")
	v.AddConfigPath("/var/lib/simcore/config")
	v.AddConfigPath("/etc/simcore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SIMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.graceWindow", defaults.GraceWindow)
	v.SetDefault("reconcile.expiryBatchSize", defaults.ExpiryBatchSize)
	v.SetDefault("reconcile.usageBatchLimit", defaults.UsageBatchLimit)
	v.SetDefault("reconcile.stuckBatchSize", defaults.StuckBatchSize)
	v.SetDefault("reconcile.usageConcurrency", defaults.UsageConcurrency)
	v.SetDefault("reconcile.jobTimeout", defaults.JobTimeout)
	v.SetDefault("reconcile.orderTimeout", defaults.OrderTimeout)
	v.SetDefault("reconcile.leaseEnabled", defaults.LeaseEnabled)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcileConfig
		if err := v.UnmarshalKey("reconcile", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateReconcileConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	return h.current.Load().(ReconcileConfig)
}

func validateReconcileConfig(cfg ReconcileConfig) error {
	if cfg.GraceWindow < time.Minute {
		return errors.New("reconcile.graceWindow must be at least one minute")
	}
	if cfg.ExpiryBatchSize <= 0 || cfg.StuckBatchSize <= 0 || cfg.UsageBatchLimit <= 0 {
		return errors.New("reconcile batch sizes must be positive")
	}
	if cfg.UsageConcurrency <= 0 {
		return errors.New("reconcile.usageConcurrency must be positive")
	}
	if cfg.JobTimeout <= 0 || cfg.OrderTimeout <= 0 {
		return errors.New("reconcile timeouts must be positive")
	}
	return nil
}
