package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v7"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"development"`
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Platform PlatformConfig
	Poller   PollerConfig
}

type ServerConfig struct {
	Port                    string        `env:"SERVER_PORT" envDefault:":8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"ims"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// PlatformConfig carries fallback credentials used only when a store's
// api_config omits them, and the outbound proxy the platform client dials
// through (the marketplace's published egress IP allowlist requires one in
// most deployments).
type PlatformConfig struct {
	DefaultServiceSecret string        `env:"PLATFORM_DEFAULT_SERVICE_SECRET" envDefault:""`
	DefaultLicenseKey    string        `env:"PLATFORM_DEFAULT_LICENSE_KEY" envDefault:""`
	ProxyURL             string        `env:"PLATFORM_PROXY" envDefault:""`
	RequestTimeout        time.Duration `env:"PLATFORM_REQUEST_TIMEOUT" envDefault:"30s"`
}

// PollerConfig tunes the order poller's window size and the interval of the
// background scheduler loops in cmd/server.
type PollerConfig struct {
	WindowSize      time.Duration `env:"POLLER_WINDOW_SIZE" envDefault:"2h"`
	PollInterval    time.Duration `env:"POLLER_POLL_INTERVAL" envDefault:"5m"`
	RetryInterval   time.Duration `env:"POLLER_RETRY_INTERVAL" envDefault:"1m"`
	CredentialProbeInterval time.Duration `env:"POLLER_CREDENTIAL_PROBE_INTERVAL" envDefault:"15m"`
	BatchSize       int           `env:"POLLER_BATCH_SIZE" envDefault:"100"`
	SyncConcurrency int           `env:"POLLER_SYNC_CONCURRENCY" envDefault:"16"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Parse nested structs
	if err := env.Parse(&cfg.Server); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg.Database); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg.Platform); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg.Poller); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}
