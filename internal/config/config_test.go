package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/txcore/internal/platform/logger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, cfg.Database.WriteDSN, cfg.Database.ReadDSN)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 3*time.Second, cfg.Retry.Delay)
	assert.Equal(t, time.Second, cfg.UnitOfWork.SlowSaveThreshold)
	assert.Equal(t, 2*time.Second, cfg.Events.RelayInterval)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  write_dsn: file:ledger.db
retry:
  attempts: 5
  delay: 100ms
unit_of_work:
  slow_save_threshold: 10ms
events:
  channel: ledger
`), 0o600))

	t.Setenv("TXCORE_RETRY_ATTEMPTS", "4")
	t.Setenv("TXCORE_READ_DSN", "file:replica.db")
	t.Setenv("TXCORE_OUTBOX", "true")

	cfg, err := Load(path, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "file:ledger.db", cfg.Database.WriteDSN)
	assert.Equal(t, "file:replica.db", cfg.Database.ReadDSN)
	assert.Equal(t, 4, cfg.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, time.Second, cfg.UnitOfWork.SlowSaveThreshold, "threshold has a one second floor")
	assert.Equal(t, "ledger", cfg.Events.Channel)
	assert.True(t, cfg.Events.Outbox)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("TXCORE_DRIVER", "oracle")
	_, err := Load("", nil)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}
