// Package clock provides monotonic nanosecond time and a sleep that always
// runs its full duration.
package clock

import (
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// Monotonic measures nanoseconds from its creation. It is unaffected by
// wall-clock adjustments.
type Monotonic struct {
	start time.Time
}

// New creates a clock whose zero is now.
func New() *Monotonic {
	return &Monotonic{start: time.Now()}
}

var process = New()

// Now returns nanoseconds since process start.
func Now() uint64 { return process.Now() }

// Sleep suspends the calling thread for at least n nanoseconds.
func Sleep(n uint64) { process.Sleep(n) }

// Resolution returns the clock resolution in nanoseconds.
func Resolution() uint64 { return process.Resolution() }

// Now returns nanoseconds since c was created. Successive calls never
// decrease.
func (c *Monotonic) Now() uint64 {
	return uint64(time.Since(c.start).Nanoseconds())
}

func (c *Monotonic) Resolution() uint64 {
	return 1
}

// Sleep suspends for at least n nanoseconds. Early wake-ups from signals
// are slept off against the monotonic deadline.
func (c *Monotonic) Sleep(n uint64) {
	if n == 0 {
		return
	}
	if n > math.MaxInt64 {
		n = math.MaxInt64
	}

	now := c.Now()
	deadline := now + n
	if deadline < now {
		deadline = math.MaxUint64
	}

	for now < deadline {
		ts := unix.NsecToTimespec(int64(min(deadline-now, math.MaxInt64)))
		_ = unix.Nanosleep(&ts, nil)
		now = c.Now()
	}
}
