// Package interceptors holds the save pipeline run by the unit of work and
// the command-level lock clause installed on the write handle.
package interceptors

import (
	"context"
	"sort"
	"time"

	"github.com/yungbote/txcore/internal/data/events"
	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

// Ranks of the built-in save interceptors. Lower runs first.
const (
	RankAudit        = 100
	RankDomainEvents = 200
	RankSoftDelete   = 300
)

// SaveInterceptor observes or rewrites a change set. SavingChanges runs before
// the flush and cannot veto it; SavedChanges runs only after the flush succeeded.
type SaveInterceptor interface {
	Name() string
	Rank() int
	SavingChanges(ctx context.Context, cs *tracking.ChangeSet)
	SavedChanges(dbc dbctx.Context, cs *tracking.ChangeSet) error
}

// Chain runs save interceptors in rank order; registration order only breaks ties.
type Chain struct {
	items []SaveInterceptor
}

func NewChain(items ...SaveInterceptor) *Chain {
	c := &Chain{}
	return c.With(items...)
}

// Default builds the canonical audit, domain events, soft delete chain.
func Default(dispatcher events.Dispatcher, now func() time.Time) *Chain {
	return NewChain(
		NewAudit(now),
		NewDomainEvents(dispatcher),
		NewSoftDelete(now),
	)
}

// With returns a new chain that also runs items.
func (c *Chain) With(items ...SaveInterceptor) *Chain {
	out := &Chain{}
	if c != nil {
		out.items = append(out.items, c.items...)
	}
	for _, it := range items {
		if it != nil {
			out.items = append(out.items, it)
		}
	}
	sort.SliceStable(out.items, func(i, j int) bool { return out.items[i].Rank() < out.items[j].Rank() })
	return out
}

func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.Name())
	}
	return out
}

func (c *Chain) SavingChanges(ctx context.Context, cs *tracking.ChangeSet) {
	if c == nil || cs == nil {
		return
	}
	for _, it := range c.items {
		it.SavingChanges(ctx, cs)
	}
}

// SavedChanges stops at the first failing interceptor.
func (c *Chain) SavedChanges(dbc dbctx.Context, cs *tracking.ChangeSet) error {
	if c == nil || cs == nil {
		return nil
	}
	for _, it := range c.items {
		if err := it.SavedChanges(dbc, cs); err != nil {
			return err
		}
	}
	return nil
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
