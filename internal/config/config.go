package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string
	LogLevel    string

	OTLPEndpoint string
	OTLPProtocol string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis RedisConfig

	Provisioning PartnerConfig
	Metering     MeteringConfig
	Payment      PaymentConfig
	SMTP         SMTPConfig
	Simulation   SimulationConfig
	Intake       IntakeConfig
	Schedules    ScheduleConfig

	// CommissionBps is the commission accrued per paid order, in basis points.
	CommissionBps int64

	// ActivationReadHeuristic promotes a completed order to active on the
	// owner's first detail read when the partner never sends an install event.
	ActivationReadHeuristic bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PartnerConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

type MeteringConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxBatchSize int
}

type PaymentConfig struct {
	StripeWebhookSecret string
	MidtransServerKey   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SimulationConfig struct {
	ActivationDelay      time.Duration
	TimeUnit             time.Duration
	UsageFractionPerUnit float64
}

type IntakeConfig struct {
	RateLimit  int64
	RateWindow time.Duration
}

// ScheduleConfig carries cron specs for the reconcile jobs.
type ScheduleConfig struct {
	ExpirySweep      string
	UsageRefresh     string
	StuckOrders      string
	PaidProvisioning string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "simcore"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPPort:     getenv("HTTP_PORT", "8080"),
		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol: strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "simcore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Provisioning: PartnerConfig{
			BaseURL:       strings.TrimRight(getenv("PROVISIONING_BASE_URL", ""), "/"),
			APIKey:        strings.TrimSpace(getenv("PROVISIONING_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("PROVISIONING_WEBHOOK_SECRET", "")),
			Timeout:       getenvDuration("PROVISIONING_TIMEOUT", 15*time.Second),
		},
		Metering: MeteringConfig{
			BaseURL:      strings.TrimRight(getenv("METERING_BASE_URL", ""), "/"),
			APIKey:       strings.TrimSpace(getenv("METERING_API_KEY", "")),
			Timeout:      getenvDuration("METERING_TIMEOUT", 20*time.Second),
			MaxBatchSize: getenvInt("METERING_MAX_BATCH_SIZE", 50),
		},
		Payment: PaymentConfig{
			StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			MidtransServerKey:   strings.TrimSpace(getenv("MIDTRANS_SERVER_KEY", "")),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@simcore.local"),
		},
		Simulation: SimulationConfig{
			ActivationDelay:      getenvDuration("SIMULATION_ACTIVATION_DELAY", 2*time.Minute),
			TimeUnit:             getenvDuration("SIMULATION_TIME_UNIT", time.Hour),
			UsageFractionPerUnit: getenvFloat("SIMULATION_USAGE_FRACTION", 0.1),
		},
		Intake: IntakeConfig{
			RateLimit:  int64(getenvInt("INTAKE_RATE_LIMIT", 120)),
			RateWindow: getenvDuration("INTAKE_RATE_WINDOW", time.Minute),
		},
		Schedules: ScheduleConfig{
			ExpirySweep:      getenv("CRON_EXPIRY_SWEEP", "@every 5m"),
			UsageRefresh:     getenv("CRON_USAGE_REFRESH", "@every 15m"),
			StuckOrders:      getenv("CRON_STUCK_ORDERS", "@every 2m"),
			PaidProvisioning: getenv("CRON_PAID_PROVISIONING", "@every 3m"),
		},
		CommissionBps:           int64(getenvInt("COMMISSION_BPS", 1000)),
		ActivationReadHeuristic: getenvBool("ACTIVATION_READ_HEURISTIC", true),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
