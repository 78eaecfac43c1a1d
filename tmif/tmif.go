// Package tmif is the activity side of the pexcall interface.
package tmif

import (
	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux"
	"tilemux/mux/proto"
)

// Trapper enters the multiplexer with a register file and returns the file
// of the activity that resumes.
type Trapper interface {
	TMCall(s *mux.State) *mux.State
}

// Caller issues pexcalls on behalf of the running activity.
type Caller struct {
	t Trapper
	// last is the register file returned by the most recent call.
	last *mux.State
}

// New returns a Caller that traps into t.
func New(t Trapper) *Caller { return &Caller{t: t} }

// Resumed returns the register file the last call resumed with.
func (c *Caller) Resumed() *mux.State { return c.last }

func (c *Caller) call(op proto.Operation, args ...uint64) (uint64, error) {
	var s mux.State
	s.R[mux.ArgOp] = uint64(op)
	for i, a := range args {
		s.R[mux.ArgA+i] = a
	}
	c.last = c.t.TMCall(&s)
	return Result(s.R[mux.ArgOp])
}

// Result decodes the value in the ArgOp slot after a trap.
func Result(v uint64) (uint64, error) {
	if n := int64(v); n < 0 {
		return 0, proto.Code(-n)
	}
	return v, nil
}

// Sleep blocks for ns nanoseconds. A message on ep ends the sleep early;
// ep may be kernel.InvalidEP.
func (c *Caller) Sleep(ns uint64, ep kernel.EpId) error {
	_, err := c.call(proto.OpSleep, ns, uint64(ep))
	return err
}

// Exit terminates the caller with code.
func (c *Caller) Exit(code uint64) error {
	_, err := c.call(proto.OpExit, code)
	return err
}

func (c *Caller) Yield() error {
	_, err := c.call(proto.OpYield)
	return err
}

func (c *Caller) Noop() error {
	_, err := c.call(proto.OpNoop)
	return err
}

// Wait blocks until a message arrives on ep, irq fires or timeout ns pass.
// Use proto.InvalidIRQ and mux.NoTimeout to leave a condition out.
func (c *Caller) Wait(ep kernel.EpId, irq uint64, timeout uint64) error {
	_, err := c.call(proto.OpWait, uint64(ep), irq, timeout)
	return err
}

// RegIRQ binds irq to the caller.
func (c *Caller) RegIRQ(irq hal.IRQId) error {
	_, err := c.call(proto.OpRegIRQ, uint64(irq))
	return err
}

func (c *Caller) FlushInv() error {
	_, err := c.call(proto.OpFlushInv)
	return err
}
