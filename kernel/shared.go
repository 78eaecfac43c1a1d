package kernel

import "sync/atomic"

// Env is the environment page shared between a tile's mux and its activities.
//
// The mux publishes whether other activities are ready; if none are, an
// activity may put the core to sleep via the TCU without asking the mux.
type Env struct {
	tile        atomic.Uint32
	othersReady atomic.Bool
	seq         atomic.Uint32
}

// SetTile records the tile id.
func (e *Env) SetTile(id uint16) { e.tile.Store(uint32(id)) }

// Tile returns the tile id.
func (e *Env) Tile() uint16 { return uint16(e.tile.Load()) }

// SetOthersReady publishes the ready state and bumps the sequence counter.
func (e *Env) SetOthersReady(v bool) uint32 {
	e.othersReady.Store(v)
	return e.seq.Add(1)
}

// OthersReady reports the last published value and its sequence number.
func (e *Env) OthersReady() (ready bool, seq uint32) {
	seq = e.seq.Load()
	return e.othersReady.Load(), seq
}
