package events

import (
	"fmt"
	"sync"

	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

type Handler func(dbc dbctx.Context, ev domain.Event) error

// Bus is an in-process dispatcher. Handlers for an event run in
// subscription order, name-specific handlers before catch-all ones.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[string][]Handler{}}
}

func (b *Bus) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) Dispatch(dbc dbctx.Context, evs []domain.Event) error {
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		for _, h := range b.handlersFor(ev.EventName()) {
			if err := h(dbc, ev); err != nil {
				return fmt.Errorf("handle %s: %w", ev.EventName(), err)
			}
		}
	}
	return nil
}

func (b *Bus) handlersFor(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.handlers[name])+len(b.all))
	out = append(out, b.handlers[name]...)
	return append(out, b.all...)
}
