package interceptors

import (
	"context"
	"time"

	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/ctxutil"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

// Audit stamps Auditable entities with the save time and the context's actor.
type Audit struct {
	now func() time.Time
}

func NewAudit(now func() time.Time) *Audit { return &Audit{now: nowOrDefault(now)} }

func (*Audit) Name() string { return "audit" }
func (*Audit) Rank() int    { return RankAudit }

func (a *Audit) SavingChanges(ctx context.Context, cs *tracking.ChangeSet) {
	at := a.now()
	actor := ctxutil.Actor(ctx)
	for _, e := range cs.Entries() {
		aud, ok := e.Entity.(domain.Auditable)
		if !ok {
			continue
		}
		switch e.State {
		case tracking.Added:
			aud.StampCreated(at, actor)
			aud.StampUpdated(at, actor)
		case tracking.Modified:
			aud.StampUpdated(at, actor)
		case tracking.Deleted:
			// soft-deleted rows are written as updates
			if _, soft := e.Entity.(domain.SoftDeletable); soft {
				aud.StampUpdated(at, actor)
			}
		}
	}
}

func (*Audit) SavedChanges(dbctx.Context, *tracking.ChangeSet) error { return nil }
