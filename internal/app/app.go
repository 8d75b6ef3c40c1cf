// Package app wires configuration, store handles, event delivery and the unit
// of work factory into one process.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/yungbote/txcore/internal/config"
	"github.com/yungbote/txcore/internal/data/db"
	"github.com/yungbote/txcore/internal/data/events"
	"github.com/yungbote/txcore/internal/data/interceptors"
	"github.com/yungbote/txcore/internal/data/repos"
	"github.com/yungbote/txcore/internal/data/retry"
	"github.com/yungbote/txcore/internal/data/uow"
	"github.com/yungbote/txcore/internal/domain/ledger"
	"github.com/yungbote/txcore/internal/observability"
	"github.com/yungbote/txcore/internal/platform/envutil"
	"github.com/yungbote/txcore/internal/platform/logger"
)

type App struct {
	Log     *logger.Logger
	Cfg     config.Config
	DB      *db.Handles
	UoW     *uow.Factory
	Repos   *repos.Ledger
	Bus     *events.Bus
	Clients Clients
	Retry   retry.Policy
	// Metrics is read on demand; nothing is exported in the background.
	Metrics *sdkmetric.ManualReader

	meters   *sdkmetric.MeterProvider
	shutdown func(context.Context) error
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New loads configPath (may be empty) and connects everything. The caller
// owns the returned App and must Close it.
func New(ctx context.Context, configPath string) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := config.Load(configPath, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return NewWithConfig(ctx, cfg, log)
}

// NewWithConfig connects everything from an already loaded cfg.
func NewWithConfig(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Log: log, Cfg: cfg, Bus: events.NewBus()}

	a.shutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
	})
	a.Metrics = sdkmetric.NewManualReader()
	a.meters = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.Metrics))
	hooks, err := observability.NewMetricHooks(a.meters.Meter("github.com/yungbote/txcore"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init metric hooks: %w", err)
	}

	handles, err := db.Open(cfg.Database, log, interceptors.LockClause{})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.DB = handles
	if err := db.Migrate(handles.Write, append(ledger.Models(), &events.OutboxMessage{})...); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if a.Clients, err = wireClients(ctx, cfg.Events, log); err != nil {
		a.Close()
		return nil, err
	}

	inTx, afterCommit := a.wireDispatchers()
	if a.UoW, err = uow.NewFactory(handles, uow.Options{
		Chain:             interceptors.Default(inTx, time.Now),
		AfterCommit:       afterCommit,
		Hooks:             hooks,
		Logger:            log,
		SlowSaveThreshold: cfg.UnitOfWork.SlowSaveThreshold,
	}); err != nil {
		a.Close()
		return nil, err
	}
	if a.Repos, err = wireRepos(log); err != nil {
		a.Close()
		return nil, err
	}

	a.Retry = retry.Policy{
		MaxAttempts: cfg.Retry.Attempts,
		Delay:       cfg.Retry.Delay,
		Exponential: cfg.Retry.Backoff,
		Retryable:   retry.LockContention,
	}
	return a, nil
}

// wireDispatchers splits event delivery by transaction. The outbox writer runs
// inside the save transaction; the in-process bus and the direct redis
// publisher run only after a commit, so a rolled back save never reaches them.
func (a *App) wireDispatchers() (inTx, afterCommit events.Dispatcher) {
	after := []events.Dispatcher{a.Bus}
	switch {
	case a.Cfg.Events.Outbox:
		inTx = events.NewOutboxWriter(a.Log)
	case a.Clients.Publisher != nil:
		after = append(after, a.Clients.Publisher)
	}
	return inTx, events.NewFanout(after...)
}

// Start launches the outbox relay when both the outbox and redis are configured.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	if !a.Cfg.Events.Outbox || a.Clients.Publisher == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.relayLoop(ctx, a.Clients.Publisher, a.Cfg.Events.RelayInterval)
	}()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
	a.Clients.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("close store handles", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.meters != nil {
		_ = a.meters.Shutdown(ctx)
	}
	if a.shutdown != nil {
		_ = a.shutdown(ctx)
	}
	a.Log.Sync()
}
