//go:build !tinygo

package hal

import "sync/atomic"

// SimClock is a manually advanced clock used by scripted and test tiles.
type SimClock struct {
	now atomic.Uint64
}

// NewSimClock returns a clock starting at start nanoseconds.
func NewSimClock(start uint64) *SimClock {
	c := &SimClock{}
	c.now.Store(start)
	return c
}

func (c *SimClock) Nanotime() uint64 { return c.now.Load() }

// Advance moves the clock forward by ns and returns the new time.
func (c *SimClock) Advance(ns uint64) uint64 { return c.now.Add(ns) }

// Set jumps to an absolute time. Moving backwards is ignored.
func (c *SimClock) Set(ns uint64) {
	for {
		cur := c.now.Load()
		if ns <= cur || c.now.CompareAndSwap(cur, ns) {
			return
		}
	}
}
