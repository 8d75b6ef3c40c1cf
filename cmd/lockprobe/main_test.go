package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/txcore/internal/app"
	"github.com/yungbote/txcore/internal/config"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/domain/ledger"
	"github.com/yungbote/txcore/internal/platform/logger"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "lockprobe.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.WriteDSN = dsn
	cfg.Database.ReadDSN = dsn
	cfg.Retry.Delay = time.Millisecond
	a, err := app.NewWithConfig(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestReadBalanceOfMissingAccountIsNotFound(t *testing.T) {
	a := newApp(t)
	_, err := readBalance(context.Background(), a, uuid.New())
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound), err.Error())
}

func TestHammerAddsEveryAdjustment(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	acct := ledger.NewAccount("lockprobe", "USD")
	require.NoError(t, a.DB.Write.Create(acct).Error)

	res, err := hammer(ctx, a, acct.ID, 1, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.succeeded)
	assert.Zero(t, res.exhausted)
	assert.Equal(t, int64(4), res.attempts)

	balance, err := readBalance(ctx, a, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), balance)
}

func TestHammerStopsWhenTheAccountIsMissing(t *testing.T) {
	a := newApp(t)
	res, err := hammer(context.Background(), a, uuid.New(), 2, 3, 1)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound), err.Error())
	assert.Zero(t, res.succeeded)
}
