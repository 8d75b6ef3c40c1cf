package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/txcore/internal/config"
	"github.com/yungbote/txcore/internal/platform/logger"
)

// Handles holds the two store handles a unit of work is built from.
// Read never carries write plugins; Write is the only handle that may lock rows.
type Handles struct {
	Read  *gorm.DB
	Write *gorm.DB
	log   *logger.Logger
}

// Open connects both handles. writePlugins are installed on the write handle only.
func Open(cfg config.DatabaseConfig, log *logger.Logger, writePlugins ...gorm.Plugin) (*Handles, error) {
	if log == nil {
		log = logger.Nop()
	}
	serviceLog := log.With("service", "db", "driver", cfg.Driver)

	write, err := open(cfg.Driver, cfg.WriteDSN, log)
	if err != nil {
		return nil, fmt.Errorf("open write handle: %w", err)
	}
	for _, p := range writePlugins {
		if p == nil {
			continue
		}
		if err := write.Use(p); err != nil {
			closeDB(write)
			return nil, fmt.Errorf("install %s: %w", p.Name(), err)
		}
	}
	read, err := open(cfg.Driver, readDSN(cfg), log)
	if err != nil {
		closeDB(write)
		return nil, fmt.Errorf("open read handle: %w", err)
	}
	if err := tunePool(write, cfg); err != nil {
		closeDB(write)
		closeDB(read)
		return nil, err
	}
	if err := tunePool(read, cfg); err != nil {
		closeDB(write)
		closeDB(read)
		return nil, err
	}

	serviceLog.Info("store handles opened", "write_dsn", cfg.WriteDSN, "read_dsn", readDSN(cfg))
	return &Handles{Read: read, Write: write, log: serviceLog}, nil
}

// Close releases both pools. Safe to call more than once.
func (h *Handles) Close() error {
	if h == nil {
		return nil
	}
	var firstErr error
	for _, g := range []*gorm.DB{h.Write, h.Read} {
		if g == nil {
			continue
		}
		sqlDB, err := g.DB()
		if err != nil {
			continue
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dialect reports the write handle's dialect name ("postgres", "sqlite").
func (h *Handles) Dialect() string {
	if h == nil || h.Write == nil {
		return ""
	}
	return h.Write.Dialector.Name()
}

func open(driver, dsn string, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		Logger:                                   newGormLog(log, gormLogger.Warn),
	})
}

func readDSN(cfg config.DatabaseConfig) string {
	if cfg.ReadDSN != "" {
		return cfg.ReadDSN
	}
	return cfg.WriteDSN
}

func tunePool(g *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := g.DB()
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	sqlDB.SetConnMaxLifetime(lifetime)
	return nil
}

func closeDB(g *gorm.DB) {
	if sqlDB, err := g.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
