package resource

import "sync"

// localBackend is the in-memory slot store behind a Table. Freed handles
// are reused LIFO so that handle numbers stay small.
type localBackend[T any] struct {
	entries  []entry[T]
	freeList []Handle
	live     int
	mu       sync.RWMutex
}

type entry[T any] struct {
	value T
	valid bool
}

func newLocalBackend[T any]() *localBackend[T] {
	return &localBackend[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]Handle, 0, 8),
	}
}

// create stores value unless limit (>0) live entries already exist.
func (b *localBackend[T]) create(value T, limit int) (Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit > 0 && b.live >= limit {
		return 0, false
	}
	b.live++

	e := entry[T]{value: value, valid: true}
	if n := len(b.freeList); n > 0 {
		handle := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		b.entries[handle-1] = e
		return handle, true
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), true
}

func (b *localBackend[T]) get(handle Handle) (T, bool) {
	var zero T
	if handle == 0 {
		return zero, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := int(handle - 1)
	if idx >= len(b.entries) || !b.entries[idx].valid {
		return zero, false
	}
	return b.entries[idx].value, true
}

func (b *localBackend[T]) take(handle Handle) (T, bool) {
	var zero T
	if handle == 0 {
		return zero, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := int(handle - 1)
	if idx >= len(b.entries) || !b.entries[idx].valid {
		return zero, false
	}

	value := b.entries[idx].value
	b.entries[idx] = entry[T]{}
	b.freeList = append(b.freeList, handle)
	b.live--
	return value, true
}

// drain empties the store and returns every live value with its handle.
func (b *localBackend[T]) drain() ([]Handle, []T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handles := make([]Handle, 0, b.live)
	values := make([]T, 0, b.live)
	for i, e := range b.entries {
		if e.valid {
			handles = append(handles, Handle(i+1))
			values = append(values, e.value)
		}
	}
	b.entries = b.entries[:0]
	b.freeList = b.freeList[:0]
	b.live = 0
	return handles, values
}

func (b *localBackend[T]) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live
}

func (b *localBackend[T]) each(fn func(Handle, T) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid && !fn(Handle(i+1), e.value) {
			return
		}
	}
}
