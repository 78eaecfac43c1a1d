// Package tcu virtualizes the tile's single command-register triple.
package tcu

import (
	"fmt"

	"tilemux/hal"
)

// Cmd is an aborted command that must be repeated.
type Cmd struct {
	Command  hal.Reg
	Arg1     hal.Reg
	DataAddr uint64
	DataSize uint64
}

// CmdState holds the registers of an aborted command.
//
// The zero value holds nothing. Args are always written back on Restore so a
// handler's register writes never leak into the interrupted activity; the
// command itself is only retried when one was in flight.
type CmdState struct {
	cmd  *Cmd
	args hal.CmdRegs
}

// Pending returns the command that will be retried, or nil.
func (s *CmdState) Pending() *Cmd { return s.cmd }

// Save aborts whatever is in flight and remembers it.
func (s *CmdState) Save(t hal.TCU) {
	regs, err := t.AbortCmd()
	if err != nil {
		panic(fmt.Sprintf("tcu: abort failed: %v", err))
	}
	s.args = regs
	if !regs.InFlight() {
		s.cmd = nil
		return
	}
	s.cmd = &Cmd{
		Command:  regs.Command,
		Arg1:     regs.Arg1,
		DataAddr: regs.DataAddr,
		DataSize: regs.DataSize,
	}
}

// Restore writes the saved registers back and retries the saved command.
func (s *CmdState) Restore(t hal.TCU) {
	t.WriteCmdArgs(s.args.Arg1, s.args.DataAddr, s.args.DataSize)
	if s.cmd == nil {
		return
	}
	cmd := s.cmd
	s.cmd = nil
	t.Fence()
	if err := t.RetryCmd(cmd.Command); err != nil {
		panic(fmt.Sprintf("tcu: retry of %s failed: %v", hal.CmdOp(cmd.Command), err))
	}
}

// Guard keeps the interrupted command alive across a section that issues
// its own TCU commands.
type Guard struct {
	t     hal.TCU
	state CmdState
	done  bool
}

// NewGuard saves the current command state.
func NewGuard(t hal.TCU) *Guard {
	g := &Guard{t: t}
	g.state.Save(t)
	return g
}

// Release restores the saved state. Calls after the first are no-ops.
func (g *Guard) Release() {
	if g.done {
		return
	}
	g.done = true
	g.state.Restore(g.t)
}
