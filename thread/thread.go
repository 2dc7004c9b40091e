// Package thread runs entry functions on dedicated OS threads and provides
// the process-wide global lock.
//
// Each Create locks a fresh goroutine to its own OS thread for the whole
// life of the entry function; the thread exits with it. Handles are
// consumed by Join.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostlayer/errors"
	"github.com/wippyai/hostlayer/internal/fatal"
	"github.com/wippyai/hostlayer/resource"
)

// Handle identifies a created thread until it is joined.
type Handle uint64

type worker struct {
	done chan struct{}
	gen  uint32
}

var (
	table      = resource.NewTable[*worker]("thread", resource.WithPhase(errors.PhaseThread))
	generation atomic.Uint32
	running    atomic.Int64
	joinMu     sync.Mutex
)

// SetLimit caps the number of threads that are created but not yet joined.
// Zero removes the cap. Creating past the cap terminates the process.
func SetLimit(n int) {
	table.SetLimit(n)
}

// Running returns the number of threads whose entry has not returned.
func Running() int {
	return int(running.Load())
}

// Create starts entry(arg) on a new OS thread. Failure to create a thread
// is fatal.
func Create(entry func(arg any), arg any) Handle {
	w := &worker{
		done: make(chan struct{}),
		gen:  generation.Add(1),
	}

	slot, err := table.Insert(w)
	if err != nil {
		fatal.Exit("thread creation failed", zap.Error(err))
		return 0
	}
	h := Handle(uint64(w.gen)<<32 | uint64(slot))

	running.Add(1)
	go func() {
		// Never unlocked: the OS thread is torn down with the goroutine.
		runtime.LockOSThread()
		defer close(w.done)
		defer running.Add(-1)

		Logger().Debug("thread started", zap.Uint64("handle", uint64(h)), zap.Int("tid", osThreadID()))
		entry(arg)
		Logger().Debug("thread finished", zap.Uint64("handle", uint64(h)))
	}()

	return h
}

// Join waits for the thread to finish and consumes the handle. Unknown or
// already joined handles report KindNotFound.
func Join(h Handle) error {
	w, err := take(h)
	if err != nil {
		return err
	}
	<-w.done
	return nil
}

func take(h Handle) (*worker, error) {
	slot := resource.Handle(uint32(h))

	joinMu.Lock()
	defer joinMu.Unlock()

	w, ok := table.Get(slot)
	if !ok || w.gen != uint32(h>>32) {
		return nil, errors.NotFound(errors.PhaseThread, "thread", uint64(h))
	}
	table.Remove(slot)
	return w, nil
}
