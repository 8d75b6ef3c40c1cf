package interceptors

import (
	"context"

	"github.com/yungbote/txcore/internal/data/events"
	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

// DomainEvents collects events from staged entities before the flush and
// hands them to a transactional dispatcher once the flush succeeded. The unit
// of work publishes the same events to its after-commit dispatcher later.
type DomainEvents struct {
	dispatcher events.Dispatcher
}

// NewDomainEvents with a nil dispatcher only releases the events from their
// entities after a successful flush.
func NewDomainEvents(d events.Dispatcher) *DomainEvents {
	return &DomainEvents{dispatcher: d}
}

func (*DomainEvents) Name() string { return "domain_events" }
func (*DomainEvents) Rank() int    { return RankDomainEvents }

func (*DomainEvents) SavingChanges(_ context.Context, cs *tracking.ChangeSet) {
	for _, e := range cs.Entries() {
		if src, ok := e.Entity.(domain.EventSource); ok {
			cs.Collect(src)
		}
	}
}

func (d *DomainEvents) SavedChanges(dbc dbctx.Context, cs *tracking.ChangeSet) error {
	evs := cs.Events()
	if len(evs) == 0 {
		return nil
	}
	if d.dispatcher != nil {
		if err := d.dispatcher.Dispatch(dbc, evs); err != nil {
			return domain.NewError(domain.CodeInternal, "uow.dispatch_events", err.Error(), err)
		}
	}
	cs.ReleaseEvents()
	return nil
}
