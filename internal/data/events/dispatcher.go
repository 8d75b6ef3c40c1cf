// Package events delivers domain events collected by the save pipeline.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

// Dispatcher receives the events of one successful flush. dbc carries the
// write handle, inside the active transaction when there is one.
type Dispatcher interface {
	Dispatch(dbc dbctx.Context, evs []domain.Event) error
}

type DispatcherFunc func(dbc dbctx.Context, evs []domain.Event) error

func (f DispatcherFunc) Dispatch(dbc dbctx.Context, evs []domain.Event) error { return f(dbc, evs) }

// Fanout runs dispatchers in order and stops at the first failure.
type Fanout []Dispatcher

func NewFanout(ds ...Dispatcher) Fanout {
	out := make(Fanout, 0, len(ds))
	for _, d := range ds {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (f Fanout) Dispatch(dbc dbctx.Context, evs []domain.Event) error {
	for _, d := range f {
		if err := d.Dispatch(dbc, evs); err != nil {
			return err
		}
	}
	return nil
}

// Envelope is the wire shape of a published event.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type occurredOn interface {
	OccurredOn() time.Time
}

// NewEnvelope serializes ev. now is used when the event carries no timestamp.
func NewEnvelope(ev domain.Event, now time.Time) (Envelope, error) {
	if ev == nil {
		return Envelope{}, fmt.Errorf("nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	at := now
	if t, ok := ev.(occurredOn); ok && !t.OccurredOn().IsZero() {
		at = t.OccurredOn()
	}
	return Envelope{
		ID:         uuid.New(),
		Name:       ev.EventName(),
		OccurredAt: at.UTC(),
		Payload:    payload,
	}, nil
}
