// Package config loads application configuration from environment variables.
// An optional .env file in the working directory is read first; values
// already present in the environment win over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Nested sections are parsed
// from their own environment variables.
type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"dev"`
	Port            string        `env:"APP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`

	Database  DatabaseConfig
	Retry     RetryConfig
	Assets    AssetConfig
	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Tracing   TracingConfig
}

// DatabaseConfig selects and configures the backing SQL store. Driver is
// either "mysql" (production) or "sqlite" (embedded single-node use).
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"mysql"`
	User            string        `env:"DB_USER"`
	Pass            string        `env:"DB_PASS"`
	Host            string        `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port            string        `env:"DB_PORT" envDefault:"3306"`
	Name            string        `env:"DB_NAME"`
	SQLitePath      string        `env:"DB_SQLITE_PATH" envDefault:"data/events.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RetryConfig bounds the internal retry of transactions that failed with a
// transient store error.
type RetryConfig struct {
	Attempts       int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"RETRY_INITIAL_BACKOFF" envDefault:"25ms"`
	MaxBackoff     time.Duration `env:"RETRY_MAX_BACKOFF" envDefault:"250ms"`
	MaxElapsed     time.Duration `env:"RETRY_MAX_ELAPSED" envDefault:"5s"`
}

// AssetConfig configures where event images are stored. With the disk driver
// files are written under Dir and served back from PublicBaseURL.
type AssetConfig struct {
	Driver         string `env:"ASSET_DRIVER" envDefault:"disk"`
	Dir            string `env:"ASSET_DIR" envDefault:"data/assets"`
	PublicBaseURL  string `env:"ASSET_PUBLIC_BASE_URL" envDefault:"http://localhost:8080/assets"`
	MaxUploadBytes int64  `env:"ASSET_MAX_UPLOAD_BYTES" envDefault:"5242880"`
}

// QueueConfig configures the RabbitMQ activity and asset cleanup queues.
// Messaging is disabled when URL is empty. Outgoing messages wait in a buffer
// of PublishBuffer entries; each send is bounded by PublishTimeout.
type QueueConfig struct {
	URL             string        `env:"RABBITMQ_URL"`
	ActivityQueue   string        `env:"QUEUE_ACTIVITY" envDefault:"reservation.activity"`
	AssetCleanup    string        `env:"QUEUE_ASSET_CLEANUP" envDefault:"asset.cleanup"`
	ActivityLogPath string        `env:"ACTIVITY_LOG_PATH" envDefault:"logs/activity.log"`
	DialTimeout     time.Duration `env:"QUEUE_DIAL_TIMEOUT" envDefault:"5s"`
	PublishBuffer   int           `env:"QUEUE_PUBLISH_BUFFER" envDefault:"1024"`
	PublishTimeout  time.Duration `env:"QUEUE_PUBLISH_TIMEOUT" envDefault:"5s"`
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"event-reservation"`
}

// Load reads the optional .env file and parses the environment into a
// Config. Missing required variables are reported by name.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "mysql":
		if c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("missing required env var: DB_USER and DB_NAME are required for mysql")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("missing required env var: DB_SQLITE_PATH")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q (want mysql or sqlite)", c.Database.Driver)
	}
	switch strings.ToLower(c.Assets.Driver) {
	case "disk", "memory":
	default:
		return fmt.Errorf("invalid ASSET_DRIVER %q (want disk or memory)", c.Assets.Driver)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

type secretOnly struct {
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
}

// LoadJWTSecret reads only JWT_SECRET, for tools that do not need the
// rest of the configuration.
func LoadJWTSecret() (string, error) {
	_ = godotenv.Load()
	s, err := env.ParseAs[secretOnly]()
	if err != nil {
		return "", fmt.Errorf("parse config: %w", err)
	}
	return s.JWTSecret, nil
}
