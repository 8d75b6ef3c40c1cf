package tracking

import "github.com/yungbote/txcore/internal/domain"

// ChangeSet is the pending work of one save. Save interceptors may rewrite
// entry states and collect events; the flush reads the final states.
type ChangeSet struct {
	entries []*Entry
	events  []domain.Event
	sources []domain.EventSource
}

func (c *ChangeSet) Entries() []*Entry { return c.entries }

func (c *ChangeSet) Len() int { return len(c.entries) }

// InState returns the entries currently in state s.
func (c *ChangeSet) InState(s State) []*Entry {
	var out []*Entry
	for _, e := range c.entries {
		if e.State == s {
			out = append(out, e)
		}
	}
	return out
}

// Collect queues src's pending events. They stay on src until ReleaseEvents.
func (c *ChangeSet) Collect(src domain.EventSource) {
	if src == nil {
		return
	}
	evs := src.PendingEvents()
	if len(evs) == 0 {
		return
	}
	for _, ev := range evs {
		if ev != nil {
			c.events = append(c.events, ev)
		}
	}
	c.sources = append(c.sources, src)
}

func (c *ChangeSet) Events() []domain.Event { return c.events }

// ReleaseEvents clears the collected events from their sources.
func (c *ChangeSet) ReleaseEvents() {
	for _, src := range c.sources {
		src.ClearEvents()
	}
	c.sources = nil
	c.events = nil
}
