package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/txcore/internal/platform/envutil"
	"github.com/yungbote/txcore/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Retry         RetryConfig         `yaml:"retry"`
	UnitOfWork    UnitOfWorkConfig    `yaml:"unit_of_work"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
	LogMode       string              `yaml:"log_mode"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	WriteDSN        string        `yaml:"write_dsn"`
	ReadDSN         string        `yaml:"read_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	Backoff  bool          `yaml:"backoff"`
}

type UnitOfWorkConfig struct {
	SlowSaveThreshold time.Duration `yaml:"slow_save_threshold"`
}

type EventsConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	Channel       string        `yaml:"channel"`
	Outbox        bool          `yaml:"outbox"`
	RelayInterval time.Duration `yaml:"relay_interval"`
}

type ObservabilityConfig struct {
	OTelEnabled bool   `yaml:"otel_enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns a config pointing at a local postgres.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			WriteDSN:        "postgres://postgres@localhost:5432/txcore?sslmode=disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    3 * time.Second,
		},
		UnitOfWork: UnitOfWorkConfig{SlowSaveThreshold: time.Second},
		Events:     EventsConfig{Channel: "txcore.events", RelayInterval: 2 * time.Second},
		Observability: ObservabilityConfig{
			ServiceName: "txcore",
		},
		LogMode: "dev",
	}
}

// Load applies defaults, then the YAML file at path (skipped when path is empty),
// then environment overrides.
func Load(path string, log *logger.Logger) (Config, error) {
	cfg := Default()
	if p := strings.TrimSpace(path); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", p, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", p, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if log != nil {
		log.Debug("config loaded",
			"driver", cfg.Database.Driver,
			"write_dsn", cfg.Database.WriteDSN,
			"read_dsn", cfg.Database.ReadDSN,
			"retry_attempts", cfg.Retry.Attempts,
			"retry_delay", cfg.Retry.Delay,
		)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	db := &cfg.Database
	db.Driver = envutil.String("TXCORE_DRIVER", db.Driver)
	db.WriteDSN = envutil.String("TXCORE_WRITE_DSN", db.WriteDSN)
	db.ReadDSN = envutil.String("TXCORE_READ_DSN", db.ReadDSN)
	db.MaxOpenConns = envutil.Int("TXCORE_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = envutil.Int("TXCORE_MAX_IDLE_CONNS", db.MaxIdleConns)

	cfg.Retry.Attempts = envutil.Int("TXCORE_RETRY_ATTEMPTS", cfg.Retry.Attempts)
	cfg.Retry.Delay = envutil.Duration("TXCORE_RETRY_DELAY", cfg.Retry.Delay)
	cfg.Retry.Backoff = envutil.Bool("TXCORE_RETRY_BACKOFF", cfg.Retry.Backoff)

	cfg.UnitOfWork.SlowSaveThreshold = envutil.Duration("TXCORE_SLOW_SAVE_THRESHOLD", cfg.UnitOfWork.SlowSaveThreshold)

	cfg.Events.RedisAddr = envutil.String("TXCORE_REDIS_ADDR", cfg.Events.RedisAddr)
	cfg.Events.Channel = envutil.String("TXCORE_EVENTS_CHANNEL", cfg.Events.Channel)
	cfg.Events.Outbox = envutil.Bool("TXCORE_OUTBOX", cfg.Events.Outbox)
	cfg.Events.RelayInterval = envutil.Duration("TXCORE_RELAY_INTERVAL", cfg.Events.RelayInterval)

	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Observability.OTelEnabled = envutil.Bool("OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Observability.ServiceName)
}

func (c *Config) normalize() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.WriteDSN) == "" {
		return fmt.Errorf("database write_dsn is required")
	}
	if strings.TrimSpace(c.Database.ReadDSN) == "" {
		c.Database.ReadDSN = c.Database.WriteDSN
	}
	if c.Retry.Attempts < 1 {
		c.Retry.Attempts = 1
	}
	if c.Retry.Delay <= 0 {
		c.Retry.Delay = 3 * time.Second
	}
	if c.Events.RelayInterval <= 0 {
		c.Events.RelayInterval = 2 * time.Second
	}
	if c.UnitOfWork.SlowSaveThreshold < time.Second {
		c.UnitOfWork.SlowSaveThreshold = time.Second
	}
	return nil
}
