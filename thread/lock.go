package thread

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Lock is a plain mutual-exclusion lock. It is not reentrant: a holder that
// calls Lock again deadlocks, or panics when debug checks are enabled.
type Lock struct {
	mu    sync.Mutex
	owner atomic.Int64
}

var (
	global Lock
	debug  atomic.Bool
)

// GlobalLock returns the process-wide lock.
func GlobalLock() *Lock {
	return &global
}

// SetDebug enables reentrancy assertions on every Lock.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

func (l *Lock) Lock() {
	if !debug.Load() {
		l.mu.Lock()
		return
	}
	id := goroutineID()
	if l.owner.Load() == id {
		panic("thread: lock acquired twice by the same holder")
	}
	l.mu.Lock()
	l.owner.Store(id)
}

func (l *Lock) Unlock() {
	l.owner.Store(0)
	l.mu.Unlock()
}

// goroutineID parses the id from the "goroutine N [" stack header. Only
// debug builds pay for it.
func goroutineID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
