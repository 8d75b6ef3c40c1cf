package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/txcore/internal/data/dberr"
	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/ctxutil"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

// UnitOfWork owns one pinned write connection, at most one transaction on it,
// and the change tracker for entities staged through it. It maps to one
// logical operation and is not safe for concurrent use.
type UnitOfWork struct {
	f        *Factory
	conn     *sql.Conn
	write    *gorm.DB
	tx       *gorm.DB
	tracker  *tracking.Tracker
	// saved events waiting for the active transaction to commit
	outgoing []domain.Event
	closed   bool
}

func (u *UnitOfWork) InTransaction() bool { return u.tx != nil }

func (u *UnitOfWork) Tracker() *tracking.Tracker { return u.tracker }

// Reader returns the read handle. It never sees uncommitted writes of this unit.
func (u *UnitOfWork) Reader(ctx context.Context) *gorm.DB {
	return u.f.handles.Read.WithContext(ctxutil.Default(ctx))
}

// Writer returns the write handle, bound to the active transaction if any.
func (u *UnitOfWork) Writer(ctx context.Context) *gorm.DB {
	base := u.write
	if u.tx != nil {
		base = u.tx
	}
	return base.WithContext(ctxutil.Default(ctx))
}

// Dialect is the store dialect name of the write handle.
func (u *UnitOfWork) Dialect() string { return u.write.Dialector.Name() }

// BeginTransaction opens a transaction unless one is already active.
func (u *UnitOfWork) BeginTransaction(ctx context.Context, level sql.IsolationLevel) error {
	if err := u.usable("uow.begin"); err != nil {
		return err
	}
	if u.tx != nil {
		return nil
	}
	ctx, span := u.startSpan(ctx, "uow.begin", attribute.String("db.isolation", level.String()))
	start := time.Now()
	tx := u.write.WithContext(ctx).Begin(&sql.TxOptions{Isolation: level})
	if tx.Error != nil {
		err := dberr.Map("uow.begin", tx.Error)
		u.finish(span, "uow.begin", start, err)
		return err
	}
	u.tx = tx
	u.f.log.Debug("transaction started", "isolation", level.String())
	u.finish(span, "uow.begin", start, nil)
	return nil
}

// CommitTransaction commits the active transaction; without one it does nothing.
// Pending changes are not saved implicitly.
func (u *UnitOfWork) CommitTransaction(ctx context.Context) error {
	if err := u.usable("uow.commit"); err != nil {
		return err
	}
	if u.tx == nil {
		return nil
	}
	_, span := u.startSpan(ctx, "uow.commit")
	start := time.Now()
	tx := u.tx
	u.tx = nil
	evs := u.outgoing
	u.outgoing = nil
	if err := tx.Commit().Error; err != nil {
		// the transaction is gone either way
		u.tracker.DetachAll()
		mapped := dberr.Map("uow.commit", err)
		u.finish(span, "uow.commit", start, mapped)
		return mapped
	}
	u.f.log.Debug("transaction committed")
	u.finish(span, "uow.commit", start, nil)
	u.publish(ctx, evs)
	return nil
}

// RollbackTransaction rolls back the active transaction, if any, and then
// always detaches every tracked entity so later reads hit the store.
func (u *UnitOfWork) RollbackTransaction(ctx context.Context) error {
	if u.closed {
		return nil
	}
	defer u.tracker.DetachAll()
	u.outgoing = nil
	if u.tx == nil {
		return nil
	}
	_, span := u.startSpan(ctx, "uow.rollback")
	start := time.Now()
	tx := u.tx
	u.tx = nil
	err := tx.Rollback().Error
	if errors.Is(err, sql.ErrTxDone) {
		// already finished by the driver, e.g. after context cancellation
		err = nil
	}
	if err != nil {
		err = dberr.Map("uow.rollback", err)
	}
	u.f.log.Debug("transaction rolled back", "error", err)
	u.finish(span, "uow.rollback", start, err)
	return err
}

// SaveChanges flushes the change set through the interceptor chain and returns
// the number of entities written. Without an active transaction the flush runs
// in its own transaction so a save is all-or-nothing.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int, error) {
	if err := u.usable("uow.save"); err != nil {
		return 0, err
	}
	ctx = ctxutil.Default(ctx)
	cs := u.tracker.ChangeSet()
	if cs.Len() == 0 {
		return 0, nil
	}
	ctx, span := u.startSpan(ctx, "uow.save", attribute.Int("uow.entries", cs.Len()))
	start := time.Now()

	u.f.chain.SavingChanges(ctx, cs)

	tx, implicit := u.tx, false
	if tx == nil {
		implicit = true
		tx = u.write.WithContext(ctx).Begin()
		if tx.Error != nil {
			err := dberr.Map("uow.save", tx.Error)
			u.finish(span, "uow.save", start, err)
			return 0, err
		}
	}

	n, err := flush(ctx, tx, cs)
	if err != nil {
		if implicit {
			_ = tx.Rollback().Error
		}
		u.finish(span, "uow.save", start, err)
		return 0, err
	}
	u.tracker.AcceptAll()
	// SavedChanges releases the collected events, so keep them first
	evs := cs.Events()

	if err := u.f.chain.SavedChanges(dbctx.Context{Ctx: ctx, Tx: tx}, cs); err != nil {
		if implicit {
			_ = tx.Rollback().Error
			u.tracker.DetachAll()
		}
		u.finish(span, "uow.save", start, err)
		return 0, err
	}

	if implicit {
		if err := tx.Commit().Error; err != nil {
			u.tracker.DetachAll()
			mapped := dberr.Map("uow.save", err)
			u.finish(span, "uow.save", start, mapped)
			return 0, mapped
		}
	} else {
		u.outgoing = append(u.outgoing, evs...)
	}

	elapsed := time.Since(start)
	if elapsed > u.f.slow {
		u.f.log.Warn("slow save", "elapsed", elapsed, "threshold", u.f.slow, "entries", n, "actor", ctxutil.Actor(ctx))
	}
	u.finish(span, "uow.save", start, nil)
	if implicit {
		u.publish(ctx, evs)
	}
	return n, nil
}

// publish hands committed events to the after-commit dispatcher. The data is
// already durable, so a failure is logged and observed but not returned.
func (u *UnitOfWork) publish(ctx context.Context, evs []domain.Event) {
	if len(evs) == 0 || u.f.afterCommit == nil {
		return
	}
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	err := u.f.afterCommit.Dispatch(dbctx.Context{Ctx: ctx, Tx: u.write}, evs)
	u.f.hooks.ObserveOperation(opPublish, statusOf(err), time.Since(start))
	if err != nil {
		u.f.log.Error("publishing committed events failed", "count", len(evs), "error", err)
	}
}

// Close rolls back any open transaction and releases the pinned connection.
// Calling it again is a no-op.
func (u *UnitOfWork) Close() error {
	if u == nil || u.closed {
		return nil
	}
	rbErr := u.RollbackTransaction(context.Background())
	u.closed = true
	if err := u.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return domain.Wrap(domain.CodeInternal, "uow.close", err)
	}
	return rbErr
}

// abort rolls back after cause and returns cause.
func (u *UnitOfWork) abort(ctx context.Context, cause error) error {
	if err := u.RollbackTransaction(ctx); err != nil {
		u.f.log.Warn("rollback after failure failed", "error", err, "cause", cause)
	}
	return cause
}

func (u *UnitOfWork) usable(op string) error {
	if u == nil || u.closed {
		return domain.NewError(domain.CodeInternal, op, "unit of work is closed", nil)
	}
	return nil
}

func (u *UnitOfWork) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", u.Dialect()))
	return u.f.tracer.Start(ctxutil.Default(ctx), name, trace.WithAttributes(attrs...))
}

func (u *UnitOfWork) finish(span trace.Span, op string, start time.Time, err error) {
	status := statusOf(err)
	u.f.hooks.ObserveOperation(op, status, time.Since(start))
	if status == StatusContention {
		u.f.hooks.IncContention(op)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.f.log.Warn("unit of work operation failed", "op", op, "status", status, "error", err)
	}
	span.End()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case domain.IsCode(err, domain.CodeLockContention):
		return StatusContention
	case domain.IsCode(err, domain.CodeConflict):
		return StatusConflict
	default:
		return StatusError
	}
}

func conflictf(op, format string, args ...any) error {
	return domain.NewError(domain.CodeConflict, op, fmt.Sprintf(format, args...), nil)
}
