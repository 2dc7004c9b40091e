package resource

import (
	"sync"

	"github.com/wippyai/hostlayer/errors"
)

// Table maps small integer handles to host values of one type. It is safe
// for concurrent use.
type Table[T any] struct {
	backend   *localBackend[T]
	name      string
	phase     errors.Phase
	observers []Observer
	obsMu     sync.RWMutex
	limit     int
	closed    bool
	closeMu   sync.RWMutex
}

// Option configures a Table.
type Option func(*config)

type config struct {
	phase errors.Phase
	limit int
}

// WithLimit caps the number of live handles. Zero means unlimited.
func WithLimit(n int) Option {
	return func(c *config) {
		c.limit = n
	}
}

// WithPhase sets the phase reported by errors from this table.
func WithPhase(p errors.Phase) Option {
	return func(c *config) {
		c.phase = p
	}
}

// NewTable creates a table. name appears in events and error details.
func NewTable[T any](name string, opts ...Option) *Table[T] {
	cfg := config{phase: errors.PhaseHost}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Table[T]{
		backend: newLocalBackend[T](),
		name:    name,
		phase:   cfg.phase,
		limit:   cfg.limit,
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// SetLimit changes the live-handle cap. Existing handles are kept even when
// they exceed the new cap.
func (t *Table[T]) SetLimit(n int) {
	t.closeMu.Lock()
	t.limit = n
	t.closeMu.Unlock()
}

// Insert stores value and returns its handle. It fails with
// KindResourceExhausted when the limit is reached and KindClosed after Close.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.closeMu.RLock()
	closed, limit := t.closed, t.limit
	t.closeMu.RUnlock()

	if closed {
		return 0, errors.Closed(t.phase, t.name+" table")
	}

	handle, ok := t.backend.create(value, limit)
	if !ok {
		return 0, errors.New(t.phase, errors.KindResourceExhausted).
			Detail("%s table full (%d entries)", t.name, limit).
			Build()
	}

	t.notify(Event{Type: EventCreated, Table: t.name, Handle: handle, Value: value})
	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	return t.backend.get(handle)
}

// Lookup is Get with a KindNotFound error for unknown handles.
func (t *Table[T]) Lookup(handle Handle) (T, error) {
	v, ok := t.backend.get(handle)
	if !ok {
		return v, errors.NotFound(t.phase, t.name, handle)
	}
	return v, nil
}

// Remove takes ownership of the value out of the table without destroying it.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	value, ok := t.backend.take(handle)
	if !ok {
		return value, false
	}
	t.notify(Event{Type: EventRemoved, Table: t.name, Handle: handle, Value: value})
	return value, true
}

// Drop removes the value and runs its Dropper, if any.
func (t *Table[T]) Drop(handle Handle) bool {
	value, ok := t.backend.take(handle)
	if !ok {
		return false
	}
	t.destroy(handle, value)
	return true
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	return t.backend.len()
}

// Each iterates over live handles until fn returns false. fn must not call
// back into the table.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.backend.each(fn)
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Clear drops every live value.
func (t *Table[T]) Clear() {
	handles, values := t.backend.drain()
	for i, h := range handles {
		t.destroy(h, values[i])
	}
}

// Close drops every live value and rejects further inserts.
func (t *Table[T]) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.Clear()
	return nil
}

func (t *Table[T]) destroy(handle Handle, value T) {
	if d, ok := any(value).(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Table: t.name, Handle: handle, Value: value})
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
