package mux

import (
	"fmt"
	"sync/atomic"

	"tilemux/hal"
)

// Fatal is the panic value of a consistency violation inside the mux.
type Fatal struct {
	Msg string
}

func (f *Fatal) Error() string { return "tilemux: " + f.Msg }

// Fatalf halts the tile. The panic is recovered at the tile boundary only.
func Fatalf(format string, args ...any) {
	panic(&Fatal{Msg: fmt.Sprintf(format, args...)})
}

// PanicInfo contains details about a halted tile.
type PanicInfo struct {
	Tile  uint16
	Act   hal.ActId
	Value any
	Stack []byte
}

var panicHandler atomic.Value // func(PanicInfo)

// SetPanicHandler installs a process-wide handler for halted tiles.
//
// The handler is invoked at most once per tile. It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

// Halted reports whether the tile has stopped after a fatal error.
func (m *Mux) Halted() bool { return m.halted.Load() }

// Halt records a recovered panic and stops the tile. Later trap entries
// return nil, so the tile stays unresponsive.
func (m *Mux) Halt(v any) {
	if !m.halted.CompareAndSwap(false, true) {
		return
	}
	info := PanicInfo{Tile: m.env.Tile(), Value: v, Stack: captureStack()}
	if m.cur != nil {
		info.Act = m.cur.id
	}
	m.logf(LogErr, "tile halted: %v", v)
	if fn, ok := panicHandler.Load().(func(PanicInfo)); ok && fn != nil {
		fn(info)
	}
}
