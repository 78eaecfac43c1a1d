package mux

import "fmt"

// NumRegs is the size of the saved user register file.
const NumRegs = 8

// Trap argument slots. ArgOp carries the opcode on entry and the result on return.
const (
	ArgOp = iota
	ArgA
	ArgB
	ArgC
	ArgD
)

// State is the register file of an interrupted activity.
type State struct {
	R  [NumRegs]uint64
	PC uint64
	SP uint64
}

func (s *State) String() string {
	return fmt.Sprintf("pc=%#x sp=%#x op=%#x a=%#x b=%#x c=%#x d=%#x",
		s.PC, s.SP, s.R[ArgOp], s.R[ArgA], s.R[ArgB], s.R[ArgC], s.R[ArgD])
}
