// Package tracking keeps the write handle's view of staged entities: their
// entry state, an identity map for rows already materialized through the
// write handle, and the change set handed to the save pipeline.
package tracking

import (
	"fmt"
	"reflect"

	"github.com/yungbote/txcore/internal/domain"
)

type State int

const (
	Detached State = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pending reports whether the state requires a store write on save.
func (s State) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}

// Identity reports an entity's current key, or nil while it is unassigned.
type Identity func() any

// IdentityOf builds an Identity from the entity's own GetID.
func IdentityOf[K comparable](e domain.Entity[K]) Identity {
	return func() any {
		var zero K
		id := e.GetID()
		if id == zero {
			return nil
		}
		return id
	}
}

type Entry struct {
	Entity any
	State  State

	id  Identity
	key *identityKey
}

// ID returns the entity's current identifier, nil when unassigned.
func (e *Entry) ID() any {
	if e == nil || e.id == nil {
		return nil
	}
	return e.id()
}

type identityKey struct {
	typ reflect.Type
	id  any
}

// Tracker is not safe for concurrent use; it belongs to exactly one unit of work.
type Tracker struct {
	entries  map[any]*Entry
	order    []*Entry
	identity map[identityKey]*Entry
}

func New() *Tracker {
	return &Tracker{
		entries:  map[any]*Entry{},
		identity: map[identityKey]*Entry{},
	}
}

func (t *Tracker) Len() int { return len(t.entries) }

// Entry returns the tracked entry for entity (by instance).
func (t *Tracker) Entry(entity any) (*Entry, bool) {
	e, ok := t.entries[entity]
	return e, ok
}

// Entries returns every tracked entry in the order it was first tracked.
func (t *Tracker) Entries() []*Entry {
	out := make([]*Entry, len(t.order))
	copy(out, t.order)
	return out
}

// Add stages entity for insert.
func (t *Tracker) Add(entity any, id Identity) error {
	e, err := t.attach(entity, id, Added)
	if err != nil {
		return err
	}
	e.State = Added
	return nil
}

// Update stages entity as fully modified. An entity staged for insert stays Added.
func (t *Tracker) Update(entity any, id Identity) error {
	e, err := t.attach(entity, id, Modified)
	if err != nil {
		return err
	}
	if e.State != Added {
		e.State = Modified
	}
	return nil
}

// Remove stages entity for delete. Removing an entity that was only staged for
// insert detaches it since the store never saw it.
func (t *Tracker) Remove(entity any, id Identity) error {
	e, err := t.attach(entity, id, Deleted)
	if err != nil {
		return err
	}
	if e.State == Added {
		t.detach(e)
		return nil
	}
	e.State = Deleted
	return nil
}

// Resolve returns the tracked instance for a row just read through the write
// handle. Unknown rows are tracked as Unchanged and returned as-is.
func (t *Tracker) Resolve(entity any, id Identity) any {
	if key, ok := keyOf(entity, id); ok {
		if e, hit := t.identity[key]; hit && e.State != Detached {
			return e.Entity
		}
	}
	if e, ok := t.entries[entity]; ok {
		return e.Entity
	}
	_, _ = t.attach(entity, id, Unchanged)
	return entity
}

// ChangeSet snapshots the pending entries in staging order.
func (t *Tracker) ChangeSet() *ChangeSet {
	cs := &ChangeSet{}
	for _, e := range t.order {
		if e.State.Pending() {
			cs.entries = append(cs.entries, e)
		}
	}
	return cs
}

// AcceptAll marks a successful flush: deleted entries are dropped and the
// rest become Unchanged under their (possibly store-assigned) identifiers.
func (t *Tracker) AcceptAll() {
	for _, e := range t.Entries() {
		switch e.State {
		case Deleted:
			t.detach(e)
		case Added, Modified:
			e.State = Unchanged
			t.index(e)
		}
	}
}

// DetachAll forgets every entry so the next read goes to the store.
func (t *Tracker) DetachAll() {
	for _, e := range t.order {
		e.State = Detached
		e.key = nil
	}
	t.entries = map[any]*Entry{}
	t.identity = map[identityKey]*Entry{}
	t.order = nil
}

func (t *Tracker) attach(entity any, id Identity, state State) (*Entry, error) {
	if entity == nil {
		return nil, domain.NewError(domain.CodeValidation, "tracking.attach", "nil entity", nil)
	}
	if rv := reflect.ValueOf(entity); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, domain.NewError(domain.CodeValidation, "tracking.attach", fmt.Sprintf("entity %T must be a non-nil pointer", entity), nil)
	}
	if e, ok := t.entries[entity]; ok {
		if id != nil {
			e.id = id
		}
		return e, nil
	}
	if key, ok := keyOf(entity, id); ok {
		if other, hit := t.identity[key]; hit && other.Entity != entity {
			return nil, domain.NewError(domain.CodeConflict, "tracking.attach",
				fmt.Sprintf("another %T instance with id %v is already tracked", entity, key.id), nil)
		}
	}
	e := &Entry{Entity: entity, State: state, id: id}
	t.entries[entity] = e
	t.order = append(t.order, e)
	t.index(e)
	return e, nil
}

func (t *Tracker) index(e *Entry) {
	key, ok := keyOf(e.Entity, e.id)
	if !ok {
		return
	}
	if e.key != nil && *e.key != key {
		delete(t.identity, *e.key)
	}
	t.identity[key] = e
	e.key = &key
}

func (t *Tracker) detach(e *Entry) {
	delete(t.entries, e.Entity)
	if e.key != nil {
		if cur, ok := t.identity[*e.key]; ok && cur == e {
			delete(t.identity, *e.key)
		}
	}
	for i, o := range t.order {
		if o == e {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	e.State = Detached
	e.key = nil
}

func keyOf(entity any, id Identity) (identityKey, bool) {
	if id == nil {
		return identityKey{}, false
	}
	v := id()
	if v == nil {
		return identityKey{}, false
	}
	return identityKey{typ: reflect.TypeOf(entity), id: v}, true
}
