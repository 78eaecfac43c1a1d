//go:build !linux && !tinygo

package hal

import "time"

type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock backed by the runtime's monotonic time, starting at 0.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Nanotime() uint64 { return uint64(time.Since(c.start)) }
