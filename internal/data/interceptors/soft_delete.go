package interceptors

import (
	"context"
	"time"

	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

// SoftDelete turns removals of SoftDeletable entities into flagged updates.
type SoftDelete struct {
	now func() time.Time
}

func NewSoftDelete(now func() time.Time) *SoftDelete { return &SoftDelete{now: nowOrDefault(now)} }

func (*SoftDelete) Name() string { return "soft_delete" }
func (*SoftDelete) Rank() int    { return RankSoftDelete }

func (s *SoftDelete) SavingChanges(_ context.Context, cs *tracking.ChangeSet) {
	at := s.now()
	for _, e := range cs.InState(tracking.Deleted) {
		sd, ok := e.Entity.(domain.SoftDeletable)
		if !ok {
			continue
		}
		sd.MarkDeleted(at)
		e.State = tracking.Modified
	}
}

func (*SoftDelete) SavedChanges(dbctx.Context, *tracking.ChangeSet) error { return nil }
