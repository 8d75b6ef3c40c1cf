package uow

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/txcore/internal/data/db"
	"github.com/yungbote/txcore/internal/data/dberr"
	"github.com/yungbote/txcore/internal/data/events"
	"github.com/yungbote/txcore/internal/data/interceptors"
	"github.com/yungbote/txcore/internal/data/retry"
	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/ctxutil"
	"github.com/yungbote/txcore/internal/platform/logger"
)

const tracerName = "github.com/yungbote/txcore/internal/data/uow"

const (
	minSlowSaveThreshold = time.Second
	opExecute            = "uow.execute"
	opPublish            = "uow.publish"
)

type Options struct {
	// Chain defaults to interceptors.Default with no dispatcher. Dispatchers
	// on the chain run inside the transaction and must only write through it.
	Chain *interceptors.Chain

	// AfterCommit receives the events of a save once its transaction has
	// committed. Events of a rolled back transaction never reach it.
	AfterCommit events.Dispatcher

	Hooks  Hooks
	Logger *logger.Logger
	Tracer trace.Tracer

	// SlowSaveThreshold has a floor of one second.
	SlowSaveThreshold time.Duration
}

// Factory builds units of work over one pair of store handles.
type Factory struct {
	handles     *db.Handles
	chain       *interceptors.Chain
	afterCommit events.Dispatcher
	hooks       Hooks
	log         *logger.Logger
	tracer      trace.Tracer
	slow        time.Duration
}

// NewFactory installs the lock clause plugin on the write handle if missing.
func NewFactory(h *db.Handles, opts Options) (*Factory, error) {
	if h == nil || h.Write == nil || h.Read == nil {
		return nil, domain.NewError(domain.CodeInternal, "uow.factory", "read and write handles are required", nil)
	}
	if !interceptors.Installed(h.Write) {
		if err := h.Write.Use(interceptors.LockClause{}); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "uow.factory", err)
		}
	}
	f := &Factory{
		handles:     h,
		chain:       opts.Chain,
		afterCommit: opts.AfterCommit,
		hooks:       opts.Hooks,
		log:         opts.Logger,
		tracer:      opts.Tracer,
		slow:        opts.SlowSaveThreshold,
	}
	if f.chain == nil {
		f.chain = interceptors.Default(nil, nil)
	}
	if f.hooks == nil {
		f.hooks = NoopHooks()
	}
	if f.log == nil {
		f.log = logger.Nop()
	}
	f.log = f.log.With("service", "UnitOfWork")
	if f.tracer == nil {
		f.tracer = otel.Tracer(tracerName)
	}
	if f.slow < minSlowSaveThreshold {
		f.slow = minSlowSaveThreshold
	}
	return f, nil
}

func (f *Factory) Hooks() Hooks { return f.hooks }

func (f *Factory) Chain() *interceptors.Chain { return f.chain }

// New pins one write connection for the unit of work. Callers must Close it.
func (f *Factory) New(ctx context.Context) (*UnitOfWork, error) {
	ctx = ctxutil.Default(ctx)
	sqlDB, err := f.handles.Write.DB()
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "uow.new", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, dberr.Map("uow.new", err)
	}
	write := f.handles.Write.Session(&gorm.Session{NewDB: true, Context: ctx})
	write.Statement.ConnPool = conn
	return &UnitOfWork{
		f:       f,
		conn:    conn,
		write:   write,
		tracker: tracking.New(),
	}, nil
}

// Execute runs fn in a fresh unit of work inside a transaction at level,
// saving and committing when fn succeeds. Any failure rolls back, which
// detaches every tracked entity.
func (f *Factory) Execute(ctx context.Context, level sql.IsolationLevel, fn func(ctx context.Context, u *UnitOfWork) error) (err error) {
	u, err := f.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := u.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := u.BeginTransaction(ctx, level); err != nil {
		return err
	}
	if err := fn(ctx, u); err != nil {
		return u.abort(ctx, err)
	}
	if _, err := u.SaveChanges(ctx); err != nil {
		return u.abort(ctx, err)
	}
	return u.CommitTransaction(ctx)
}

// ExecuteRetrying runs Execute under p. Every attempt gets a fresh unit of
// work, so nothing tracked by a failed attempt leaks into the next one.
func (f *Factory) ExecuteRetrying(ctx context.Context, p retry.Policy, level sql.IsolationLevel, fn func(ctx context.Context, u *UnitOfWork) error) error {
	next := p.OnRetry
	p.OnRetry = func(attempt int, err error) {
		f.hooks.IncRetry(opExecute)
		f.log.Debug("retrying unit of work", "attempt", attempt, "error", err)
		if next != nil {
			next(attempt, err)
		}
	}
	return p.Do(ctx, func(ctx context.Context) error {
		err := f.Execute(ctx, level, fn)
		if dberr.IsLockContention(err) {
			f.hooks.IncContention(opExecute)
		}
		return err
	})
}
