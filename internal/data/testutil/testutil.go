package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/txcore/internal/config"
	"github.com/yungbote/txcore/internal/data/db"
	"github.com/yungbote/txcore/internal/domain/ledger"
	"github.com/yungbote/txcore/internal/platform/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	pgOnce sync.Once
	pg     *db.Handles
	pgErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// SQLite opens read and write handles on a fresh WAL database file and
// migrates the ledger tables plus extra.
func SQLite(tb testing.TB, extra ...any) *db.Handles {
	tb.Helper()
	dsn := "file:" + filepath.Join(tb.TempDir(), "txcore.db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=off"
	h, err := db.Open(config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		WriteDSN:     dsn,
		ReadDSN:      dsn,
		MaxOpenConns: 4,
	}, logger.Nop())
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = h.Close() })
	if err := db.Migrate(h.Write, append(ledger.Models(), extra...)...); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	return h
}

// Postgres returns shared handles on TEST_POSTGRES_DSN, skipping when unset.
func Postgres(tb testing.TB, extra ...any) *db.Handles {
	tb.Helper()
	pgOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			pgErr = errMissingDSN
			return
		}
		pg, pgErr = db.Open(config.DatabaseConfig{
			Driver:       config.DriverPostgres,
			WriteDSN:     dsn,
			MaxOpenConns: 10,
		}, logger.Nop())
	})
	if errors.Is(pgErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	if pgErr != nil {
		tb.Fatalf("failed to init test db: %v", pgErr)
	}
	if err := db.Migrate(pg.Write, append(ledger.Models(), extra...)...); err != nil {
		tb.Fatalf("migrate postgres: %v", err)
	}
	return pg
}

// DryRunPostgres renders postgres SQL without a server.
func DryRunPostgres(tb testing.TB) *gorm.DB {
	tb.Helper()
	g, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=dryrun dbname=dryrun sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open dry-run postgres: %v", err)
	}
	return g
}
