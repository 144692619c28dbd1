package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv  string
	Database DatabaseConfig
	Odoo     OdooConfig
	Sync     SyncConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Username string `validate:"required"`
	Password string
	Database string `validate:"required"`

	// used when Host is localhost and Password is empty
	EmbeddedPath string
	EmbeddedPort int `validate:"omitempty,min=1,max=65535"`
}

// Embedded reports whether the bridge should run its own PostgreSQL
func (d DatabaseConfig) Embedded() bool {
	return d.Host == "localhost" && d.Password == ""
}

// OdooConfig holds the remote ERP connection settings
type OdooConfig struct {
	URL      string `validate:"required,url"`
	Database string `validate:"required"`
	Username string `validate:"required"`
	Password string `validate:"required"`
	Timeout  time.Duration
}

// SyncConfig controls the queue drain and reconciliation schedule
type SyncConfig struct {
	FlushInterval     time.Duration
	BatchSize         int `validate:"min=1,max=1000"`
	Strict            bool
	ReconcileInterval time.Duration
	ReconcileLookback time.Duration
	DiscountSKU       string `validate:"required"`
}

// RedisConfig is optional; an empty Addr selects the in-process locker
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// RabbitMQConfig is optional; an empty URL disables broker intake
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// ServerConfig holds the admin API settings
type ServerConfig struct {
	Port      string `validate:"required,numeric"`
	JWTSecret string `validate:"required,min=16"`
}

// LogConfig selects logrus level and formatter
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		NodeEnv: getEnv("NODE_ENV", "development"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "odoobridge"),

			EmbeddedPath: getEnv("PG_EMBEDDED_PATH", "./db_data"),
			EmbeddedPort: getIntEnv("PG_EMBEDDED_PORT", 5433),
		},
		Odoo: OdooConfig{
			URL:      os.Getenv("ODOO_URL"),
			Database: os.Getenv("ODOO_DB"),
			Username: os.Getenv("ODOO_USERNAME"),
			Password: os.Getenv("ODOO_PASSWORD"),
			Timeout:  time.Duration(getIntEnv("ODOO_TIMEOUT_SEC", 30)) * time.Second,
		},
		Sync: SyncConfig{
			FlushInterval:     time.Duration(getIntEnv("SYNC_FLUSH_INTERVAL_SEC", 60)) * time.Second,
			BatchSize:         getIntEnv("SYNC_BATCH_SIZE", 100),
			Strict:            getEnv("SYNC_STRICT", "false") == "true",
			ReconcileInterval: time.Duration(getIntEnv("RECONCILE_INTERVAL_MIN", 60)) * time.Minute,
			ReconcileLookback: time.Duration(getIntEnv("RECONCILE_LOOKBACK_DAYS", 7)) * 24 * time.Hour,
			DiscountSKU:       getEnv("SYNC_DISCOUNT_SKU", "DISCOUNT"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getIntEnv("REDIS_DB", 0),
			LockTTL:  time.Duration(getIntEnv("REDIS_LOCK_TTL_SEC", 120)) * time.Second,
		},
		RabbitMQ: RabbitMQConfig{
			URL:   os.Getenv("RABBITMQ_URL"),
			Queue: getEnv("RABBITMQ_QUEUE", "odoobridge.export"),
		},
		Server: ServerConfig{
			Port:      getEnv("PORT", "3220"),
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints on every section
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
