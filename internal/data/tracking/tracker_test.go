package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/txcore/internal/domain"
)

type widget struct {
	ID   int64
	Name string
}

func (w *widget) GetID() int64 { return w.ID }

func track(w *widget) Identity { return IdentityOf[int64](w) }

func TestAddThenRemoveDetaches(t *testing.T) {
	tr := New()
	w := &widget{Name: "new"}
	require.NoError(t, tr.Add(w, track(w)))
	e, ok := tr.Entry(w)
	require.True(t, ok)
	assert.Equal(t, Added, e.State)

	require.NoError(t, tr.Remove(w, track(w)))
	_, ok = tr.Entry(w)
	assert.False(t, ok)
	assert.Equal(t, Detached, e.State)
	assert.Zero(t, tr.ChangeSet().Len())
}

func TestUpdateKeepsAdded(t *testing.T) {
	tr := New()
	w := &widget{Name: "new"}
	require.NoError(t, tr.Add(w, track(w)))
	require.NoError(t, tr.Update(w, track(w)))
	e, _ := tr.Entry(w)
	assert.Equal(t, Added, e.State)
}

func TestResolveReturnsTrackedInstance(t *testing.T) {
	tr := New()
	first := &widget{ID: 7, Name: "in-memory"}
	assert.Same(t, first, tr.Resolve(first, track(first)).(*widget))

	fresh := &widget{ID: 7, Name: "from-store"}
	got := tr.Resolve(fresh, track(fresh)).(*widget)
	assert.Same(t, first, got)
	assert.Equal(t, "in-memory", got.Name)

	tr.DetachAll()
	got = tr.Resolve(fresh, track(fresh)).(*widget)
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, tr.Len())
}

func TestDuplicateInstanceIsConflict(t *testing.T) {
	tr := New()
	a := &widget{ID: 1}
	b := &widget{ID: 1}
	require.NoError(t, tr.Update(a, track(a)))
	err := tr.Update(b, track(b))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeConflict))
}

func TestChangeSetOrderAndAccept(t *testing.T) {
	tr := New()
	added := &widget{Name: "a"}
	modified := &widget{ID: 2}
	deleted := &widget{ID: 3}
	clean := &widget{ID: 4}

	require.NoError(t, tr.Add(added, track(added)))
	require.NoError(t, tr.Update(modified, track(modified)))
	require.NoError(t, tr.Remove(deleted, track(deleted)))
	tr.Resolve(clean, track(clean))

	cs := tr.ChangeSet()
	require.Equal(t, 3, cs.Len())
	assert.Same(t, added, cs.Entries()[0].Entity)
	assert.Same(t, modified, cs.Entries()[1].Entity)
	assert.Same(t, deleted, cs.Entries()[2].Entity)
	assert.Len(t, cs.InState(Deleted), 1)

	added.ID = 99
	tr.AcceptAll()

	_, ok := tr.Entry(deleted)
	assert.False(t, ok)
	e, _ := tr.Entry(added)
	assert.Equal(t, Unchanged, e.State)
	assert.Equal(t, int64(99), e.ID())

	again := &widget{ID: 99}
	assert.Same(t, added, tr.Resolve(again, track(again)).(*widget))
}

func TestRejectsNonPointer(t *testing.T) {
	tr := New()
	require.Error(t, tr.Add(widget{}, nil))
	require.Error(t, tr.Add(nil, nil))
	var nilPtr *widget
	require.Error(t, tr.Add(nilPtr, nil))
}

type named string

func (n named) EventName() string { return string(n) }

type source struct{ evs []domain.Event }

func (s *source) PendingEvents() []domain.Event { return s.evs }
func (s *source) ClearEvents()                  { s.evs = nil }

func TestCollectAndRelease(t *testing.T) {
	cs := &ChangeSet{}
	cs.Collect(nil)
	cs.Collect(&source{})
	assert.Empty(t, cs.Events())

	src := &source{evs: []domain.Event{named("a"), nil, named("b")}}
	cs.Collect(src)
	assert.Equal(t, []domain.Event{named("a"), named("b")}, cs.Events())
	require.Len(t, src.evs, 3, "events stay on the source until released")

	cs.ReleaseEvents()
	assert.Empty(t, cs.Events())
	assert.Empty(t, src.evs)
}
