// Command lockprobe hammers one ledger account from concurrent workers, each
// locking the row without waiting and retrying on contention, then reports
// how the retry policy coped.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/txcore/internal/app"
	"github.com/yungbote/txcore/internal/data/repos"
	"github.com/yungbote/txcore/internal/data/uow"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/domain/ledger"
	"github.com/yungbote/txcore/internal/platform/ctxutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		workers    int
		iterations int
		amount     int64
	)
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.IntVar(&workers, "workers", 4, "concurrent workers")
	flag.IntVar(&iterations, "iterations", 5, "adjustments per worker")
	flag.Int64Var(&amount, "amount", 1, "amount added by each adjustment")
	flag.Parse()

	ctx := context.Background()
	application, err := app.New(ctx, configPath)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		return 1
	}
	defer application.Close()
	application.Start()

	acct := ledger.NewAccount("lockprobe", "USD")
	if err := application.UoW.Execute(ctx, sql.LevelReadCommitted, func(ctx context.Context, u *uow.UnitOfWork) error {
		return application.Repos.Accounts.Add(u, acct)
	}); err != nil {
		fmt.Printf("seed account: %v\n", err)
		return 1
	}

	start := time.Now()
	res, err := hammer(ctx, application, acct.ID, workers, iterations, amount)
	if err != nil {
		fmt.Printf("hammer failed: %v\n", err)
		return 1
	}
	balance, err := readBalance(ctx, application, acct.ID)
	if err != nil {
		fmt.Printf("read balance: %v\n", err)
		return 1
	}

	fmt.Printf("driver=%s workers=%d iterations=%d elapsed=%s\n",
		application.Cfg.Database.Driver, workers, iterations, time.Since(start).Round(time.Millisecond))
	fmt.Printf("attempts=%d succeeded=%d exhausted=%d\n", res.attempts, res.succeeded, res.exhausted)
	fmt.Printf("balance=%d expected=%d\n", balance, res.succeeded*amount)
	printCounters(ctx, application)
	return 0
}

type tally struct {
	attempts  int64
	succeeded int64
	exhausted int64
}

// hammer runs workers that each adjust the account iterations times. Units
// that run out of retries are counted, any other failure stops the run.
func hammer(ctx context.Context, application *app.App, id uuid.UUID, workers, iterations int, amount int64) (tally, error) {
	var attempts, succeeded, exhausted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		actor := fmt.Sprintf("worker-%d", w)
		g.Go(func() error {
			wctx := ctxutil.WithActor(gctx, actor)
			for i := 0; i < iterations; i++ {
				err := application.UoW.ExecuteRetrying(wctx, application.Retry, sql.LevelReadCommitted,
					func(ctx context.Context, u *uow.UnitOfWork) error {
						attempts.Add(1)
						a, found, err := application.Repos.Accounts.GetForUpdate(ctx, u, repos.ByID(id))
						if err != nil {
							return err
						}
						if !found {
							return domain.NewError(domain.CodeNotFound, "lockprobe.adjust", "account vanished", nil)
						}
						a.Adjust(amount, actor, time.Now())
						return application.Repos.Accounts.Update(u, a)
					})
				switch {
				case err == nil:
					succeeded.Add(1)
				case domain.IsCode(err, domain.CodeLockContention):
					exhausted.Add(1)
				default:
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return tally{attempts: attempts.Load(), succeeded: succeeded.Load(), exhausted: exhausted.Load()}, err
}

func readBalance(ctx context.Context, application *app.App, id uuid.UUID) (int64, error) {
	u, err := application.UoW.New(ctx)
	if err != nil {
		return 0, err
	}
	defer u.Close()
	a, found, err := application.Repos.Accounts.GetByID(ctx, u, id, false)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, domain.NewError(domain.CodeNotFound, "lockprobe.read", "account vanished", nil)
	}
	return a.Balance, nil
}

func printCounters(ctx context.Context, application *app.App) {
	var rm metricdata.ResourceMetrics
	if err := application.Metrics.Collect(ctx, &rm); err != nil {
		fmt.Printf("collect metrics: %v\n", err)
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			fmt.Printf("%s=%d\n", m.Name, total)
		}
	}
}
