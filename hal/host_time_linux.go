//go:build linux && !tinygo

package hal

import "golang.org/x/sys/unix"

type monotonicClock struct {
	base uint64
}

// NewMonotonicClock returns a clock backed by CLOCK_MONOTONIC, starting at 0.
func NewMonotonicClock() Clock {
	c := &monotonicClock{}
	c.base = c.raw()
	return c
}

func (c *monotonicClock) raw() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}

func (c *monotonicClock) Nanotime() uint64 { return c.raw() - c.base }
