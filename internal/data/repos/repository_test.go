package repos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/txcore/internal/data/db"
	"github.com/yungbote/txcore/internal/data/interceptors"
	"github.com/yungbote/txcore/internal/data/retry"
	"github.com/yungbote/txcore/internal/data/testutil"
	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/data/uow"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/domain/ledger"
)

type fixture struct {
	h *db.Handles
	f *uow.Factory
	l *Ledger
}

func newFixture(t *testing.T, h *db.Handles) fixture {
	t.Helper()
	f, err := uow.NewFactory(h, uow.Options{})
	require.NoError(t, err)
	l, err := NewLedger()
	require.NoError(t, err)
	return fixture{h: h, f: f, l: l}
}

func (fx fixture) unit(t *testing.T) *uow.UnitOfWork {
	t.Helper()
	u, err := fx.f.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func (fx fixture) seed(t *testing.T, owner string, balance int64) *ledger.Account {
	t.Helper()
	a := ledger.NewAccount(owner, "USD")
	a.Balance = balance
	require.NoError(t, fx.h.Write.Create(a).Error)
	return a
}

// captureSession renders SQL against a dry-run postgres handle.
type captureSession struct {
	g       *gorm.DB
	tracker *tracking.Tracker
}

func (s captureSession) Reader(ctx context.Context) *gorm.DB { return s.g.WithContext(ctx) }
func (s captureSession) Writer(ctx context.Context) *gorm.DB { return s.g.WithContext(ctx) }
func (s captureSession) Tracker() *tracking.Tracker          { return s.tracker }

func dryRun(t *testing.T) (captureSession, *[]string) {
	t.Helper()
	g := testutil.DryRunPostgres(t)
	require.NoError(t, g.Use(interceptors.LockClause{}))
	var seen []string
	require.NoError(t, g.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		seen = append(seen, tx.Statement.SQL.String())
	}))
	return captureSession{g: g, tracker: tracking.New()}, &seen
}

func TestIncludeIsValidatedAtSetup(t *testing.T) {
	l, err := NewLedger()
	require.NoError(t, err)

	inc, err := l.Accounts.Include("Postings")
	require.NoError(t, err)
	assert.Equal(t, "Postings", inc.Path())

	for _, bad := range []string{"", "Owner", "Ledger", "Postings.Account"} {
		_, err := l.Accounts.Include(bad)
		require.Error(t, err, bad)
		assert.True(t, domain.IsCode(err, domain.CodeValidation), bad)
	}
	assert.Panics(t, func() { l.Postings.MustInclude("Account") })
}

func TestRepositoryNames(t *testing.T) {
	l, err := NewLedger()
	require.NoError(t, err)
	assert.Equal(t, "ledger_account", l.Accounts.Table())
	assert.Equal(t, "ledger_posting", l.Postings.Table())
	assert.Equal(t, "ledger_audit_note", l.AuditNotes.Table())
}

func TestGetForUpdateOrdersBeforeLocking(t *testing.T) {
	s, seen := dryRun(t)
	l, err := NewLedger()
	require.NoError(t, err)

	_, found, err := l.Accounts.GetForUpdate(context.Background(), s, Where("owner = ?", "alice"), Asc("Balance"), Desc("id"))
	require.NoError(t, err)
	assert.False(t, found)

	require.Len(t, *seen, 1)
	stmt := (*seen)[0]
	assert.Contains(t, stmt, `ORDER BY "ledger_account"."balance","ledger_account"."id" DESC`)
	assert.True(t, strings.HasSuffix(stmt, "FOR UPDATE NOWAIT"), stmt)
	assert.Less(t, strings.Index(stmt, "ORDER BY"), strings.Index(stmt, "FOR UPDATE"))
}

func TestPlainReadsTakeNoLock(t *testing.T) {
	s, seen := dryRun(t)
	l, err := NewLedger()
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = l.Accounts.Get(ctx, s, ByID(uuid.New()), true)
	require.NoError(t, err)
	_, err = l.Accounts.GetMany(ctx, s, NotDeleted(), false)
	require.NoError(t, err)

	require.Len(t, *seen, 2)
	for _, stmt := range *seen {
		assert.NotContains(t, stmt, "FOR UPDATE")
	}
	assert.Contains(t, (*seen)[0], `"ledger_account"."id" = $1`)
}

func TestUnknownOrderColumnIsRejected(t *testing.T) {
	s, seen := dryRun(t)
	l, err := NewLedger()
	require.NoError(t, err)

	_, _, err = l.Accounts.GetForUpdate(context.Background(), s, All(), Asc("nickname"))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
	assert.Empty(t, *seen, "nothing is sent when the ordering is invalid")
}

func TestGetManyTracksOnlyWriteReads(t *testing.T) {
	fx := newFixture(t, testutil.SQLite(t))
	ctx := context.Background()
	fx.seed(t, "alice", 1)
	fx.seed(t, "alice", 2)
	fx.seed(t, "bob", 3)

	u := fx.unit(t)
	rows, err := fx.l.Accounts.GetMany(ctx, u, Where("owner = ?", "alice"), false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 0, u.Tracker().Len())

	rows, err = fx.l.Accounts.GetMany(ctx, u, Where("owner = ?", "alice"), true)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, u.Tracker().Len())

	again, found, err := fx.l.Accounts.GetByID(ctx, u, rows[0].ID, true)
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, rows[0], again, "one instance per identity within a unit")
}

func TestGetForUpdateReturnsFirstInOrder(t *testing.T) {
	fx := newFixture(t, testutil.SQLite(t))
	ctx := context.Background()
	fx.seed(t, "carol", 10)
	top := fx.seed(t, "carol", 30)
	fx.seed(t, "carol", 20)

	u := fx.unit(t)
	require.NoError(t, u.BeginTransaction(ctx, sql.LevelDefault))
	got, found, err := fx.l.Accounts.GetForUpdate(ctx, u, Where("owner = ?", "carol"), Desc("balance"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, top.ID, got.ID)

	entry, ok := u.Tracker().Entry(got)
	require.True(t, ok)
	assert.Equal(t, tracking.Unchanged, entry.State)
	require.NoError(t, u.CommitTransaction(ctx))
}

func TestExistsSeesUncommittedWrites(t *testing.T) {
	fx := newFixture(t, testutil.SQLite(t))
	ctx := context.Background()
	u := fx.unit(t)

	require.NoError(t, u.BeginTransaction(ctx, sql.LevelDefault))
	note := &ledger.AuditNote{Ref: "n-1", Subject: "acct", WrittenAt: time.Now()}
	require.NoError(t, fx.l.AuditNotes.Add(u, note))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	ok, err := fx.l.AuditNotes.Exists(ctx, u, ByID("n-1"))
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := fx.l.AuditNotes.Count(ctx, u, All())
	require.NoError(t, err)
	assert.Zero(t, n, "Count reads committed state")

	require.NoError(t, u.RollbackTransaction(ctx))
	ok, err = fx.l.AuditNotes.Exists(ctx, u, ByID("n-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotDeletedFiltersSoftDeletedRows(t *testing.T) {
	fx := newFixture(t, testutil.SQLite(t))
	ctx := context.Background()
	keep := fx.seed(t, "dave", 1)
	gone := fx.seed(t, "dave", 2)

	u := fx.unit(t)
	got, found, err := fx.l.Accounts.GetByID(ctx, u, gone.ID, true)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, fx.l.Accounts.Delete(u, got))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)

	rows, err := fx.l.Accounts.GetMany(ctx, u, And(Where("owner = ?", "dave"), NotDeleted()), false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, keep.ID, rows[0].ID)

	n, err := fx.l.Accounts.Count(ctx, u, Where("owner = ?", "dave"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestExecuteDeleteBypassesSoftDelete(t *testing.T) {
	fx := newFixture(t, testutil.SQLite(t))
	ctx := context.Background()
	a := fx.seed(t, "erin", 5)
	fx.seed(t, "erin", 6)
	fx.seed(t, "frank", 7)

	u := fx.unit(t)
	tracked, _, err := fx.l.Accounts.GetByID(ctx, u, a.ID, true)
	require.NoError(t, err)

	n, err := fx.l.Accounts.ExecuteDelete(ctx, u, Where("owner = ?", "erin"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var left int64
	require.NoError(t, fx.h.Write.Model(&ledger.Account{}).Count(&left).Error)
	assert.Equal(t, int64(1), left, "rows are removed, not flagged")

	entry, ok := u.Tracker().Entry(tracked)
	require.True(t, ok, "tracked instances are left alone")
	assert.Equal(t, tracking.Unchanged, entry.State)
	assert.False(t, tracked.IsDeleted())
}

func TestPage(t *testing.T) {
	fx := newFixture(t, testutil.SQLite(t))
	ctx := context.Background()
	for i := 1; i <= 25; i++ {
		fx.seed(t, "pager", int64(i))
	}
	u := fx.unit(t)
	owned := Where("owner = ?", "pager")

	first, err := fx.l.Accounts.Page(ctx, u, owned, 0, 0, Asc("balance"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, first.Page)
	assert.Equal(t, DefaultPageSize, first.PageSize)
	assert.Equal(t, int64(25), first.TotalCount)
	assert.Equal(t, 3, first.TotalPages)
	require.Len(t, first.Items, 10)
	assert.Equal(t, int64(1), first.Items[0].Balance)

	last, err := fx.l.Accounts.Page(ctx, u, owned, 3, 10, Asc("balance"))
	require.NoError(t, err)
	require.Len(t, last.Items, 5)
	assert.Equal(t, int64(21), last.Items[0].Balance)

	empty, err := fx.l.Accounts.Page(ctx, u, Where("owner = ?", "nobody"), 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
	assert.Zero(t, empty.TotalPages)
	assert.Equal(t, 0, u.Tracker().Len(), "pages are read-only")
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 10))
	assert.Equal(t, 1, totalPages(10, 10))
	assert.Equal(t, 2, totalPages(11, 10))
}

// The following run only against a real postgres (TEST_POSTGRES_DSN).

func TestConcurrentLockersOneWins(t *testing.T) {
	fx := newFixture(t, testutil.Postgres(t))
	ctx := context.Background()
	acct := fx.seed(t, "race-"+uuid.NewString(), 100)

	var attempted sync.WaitGroup
	attempted.Add(2)
	results := make([]error, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			u, err := fx.f.New(gctx)
			if err != nil {
				attempted.Done()
				return err
			}
			defer u.Close()
			if err := u.BeginTransaction(gctx, sql.LevelReadCommitted); err != nil {
				attempted.Done()
				return err
			}
			_, _, results[i] = fx.l.Accounts.GetForUpdate(gctx, u, ByID(acct.ID))
			attempted.Done()
			attempted.Wait()
			return u.RollbackTransaction(gctx)
		})
	}
	require.NoError(t, g.Wait())

	wins, contended := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case domain.IsCode(err, domain.CodeLockContention):
			contended++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, contended)
}

func TestContendedUnitSucceedsOnRetry(t *testing.T) {
	fx := newFixture(t, testutil.Postgres(t))
	ctx := context.Background()
	acct := fx.seed(t, "retry-"+uuid.NewString(), 100)

	holder := fx.unit(t)
	require.NoError(t, holder.BeginTransaction(ctx, sql.LevelReadCommitted))
	held, found, err := fx.l.Accounts.GetForUpdate(ctx, holder, ByID(acct.ID))
	require.NoError(t, err)
	require.True(t, found)
	held.Adjust(-40, "hold", time.Now())
	require.NoError(t, fx.l.Accounts.Update(holder, held))
	_, err = holder.SaveChanges(ctx)
	require.NoError(t, err)

	attempts := 0
	p := retry.Policy{
		MaxAttempts: 3,
		Delay:       10 * time.Millisecond,
		OnRetry: func(attempt int, err error) {
			require.True(t, domain.IsCode(err, domain.CodeLockContention), fmt.Sprint(err))
			require.NoError(t, holder.CommitTransaction(ctx))
		},
	}
	err = p.Do(ctx, func(ctx context.Context) error {
		attempts++
		return fx.f.Execute(ctx, sql.LevelReadCommitted, func(ctx context.Context, u *uow.UnitOfWork) error {
			a, found, err := fx.l.Accounts.GetForUpdate(ctx, u, ByID(acct.ID))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("account %s vanished", acct.ID)
			}
			a.Adjust(-10, "retry", time.Now())
			return fx.l.Accounts.Update(u, a)
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	var final ledger.Account
	require.NoError(t, fx.h.Write.First(&final, "id = ?", acct.ID).Error)
	assert.Equal(t, int64(50), final.Balance)
}
