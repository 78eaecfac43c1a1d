package hal

import (
	"fmt"

	"tilemux/kernel"
)

// Reg is a raw TCU register value.
type Reg = uint64

// EpId identifies a TCU endpoint.
type EpId = kernel.EpId

// ActId identifies an activity on a tile.
type ActId uint16

// IRQId identifies an external interrupt line.
type IRQId uint32

// Msg is a message in a receive buffer.
type Msg = kernel.Message

const (
	// ActIdMask selects the activity id within an activity register.
	ActIdMask Reg = 0xFFFF
	// ActMsgsShift is the position of the unread-message counter.
	ActMsgsShift = 16
)

// ActReg builds an activity register value.
func ActReg(id ActId, msgs uint16) Reg {
	return Reg(id) | Reg(msgs)<<ActMsgsShift
}

// ActRegId extracts the activity id of an activity register.
func ActRegId(r Reg) ActId { return ActId(r & ActIdMask) }

// ActRegMsgs extracts the unread-message counter of an activity register.
func ActRegMsgs(r Reg) uint16 { return uint16(r >> ActMsgsShift) }

// CmdOpCode is an unprivileged TCU command.
type CmdOpCode uint8

const (
	CmdIdle CmdOpCode = iota
	CmdSend
	CmdReply
	CmdRead
	CmdWrite
	CmdFetchMsg
	CmdAckMsg
	CmdSleep
)

func (c CmdOpCode) String() string {
	switch c {
	case CmdIdle:
		return "idle"
	case CmdSend:
		return "send"
	case CmdReply:
		return "reply"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdFetchMsg:
		return "fetch_msg"
	case CmdAckMsg:
		return "ack_msg"
	case CmdSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// BuildCmd encodes a command register: opcode in bits 0..3, endpoint in
// bits 4..19, argument from bit 25.
func BuildCmd(ep EpId, op CmdOpCode, arg Reg) Reg {
	return Reg(op) | Reg(ep)<<4 | arg<<25
}

// CmdOp extracts the opcode of a command register.
func CmdOp(cmd Reg) CmdOpCode { return CmdOpCode(cmd & 0xF) }

// CmdEp extracts the endpoint of a command register.
func CmdEp(cmd Reg) EpId { return EpId((cmd >> 4) & 0xFFFF) }

// CmdRegs is a snapshot of the unprivileged command registers.
type CmdRegs struct {
	Command  Reg
	Arg1     Reg
	DataAddr uint64
	DataSize uint64
}

// InFlight reports whether the snapshot holds an unfinished command.
func (c CmdRegs) InFlight() bool { return CmdOp(c.Command) != CmdIdle }

func (c CmdRegs) String() string {
	return fmt.Sprintf("cmd{op=%s ep=%d arg1=%#x data=%#x+%d}",
		CmdOp(c.Command), CmdEp(c.Command), c.Arg1, c.DataAddr, c.DataSize)
}

// Core request kinds in the low three bits of the core-request register.
const (
	coreReqForeignRecv Reg = 0x2
	coreReqPMPFailure  Reg = 0x3
)

// CoreReqKind distinguishes decoded core requests.
type CoreReqKind uint8

const (
	CoreReqNone CoreReqKind = iota
	CoreReqForeignReceive
	CoreReqPMPFailure
)

// CoreReq is a decoded core request.
type CoreReq struct {
	Kind CoreReqKind

	// ForeignReceive
	Act ActId
	Ep  EpId

	// PMPFailure
	Phys  uint32
	Write bool
	Error uint32
}

func (r CoreReq) String() string {
	switch r.Kind {
	case CoreReqForeignReceive:
		return fmt.Sprintf("ForeignReceive{act=%d, ep=%d}", r.Act, r.Ep)
	case CoreReqPMPFailure:
		return fmt.Sprintf("PMPFailure{phys=%#x, write=%t, error=%d}", r.Phys, r.Write, r.Error)
	default:
		return "None"
	}
}

// EncodeForeignReceive builds the raw register for a foreign-receive request.
func EncodeForeignReceive(act ActId, ep EpId) Reg {
	return Reg(act)<<48 | Reg(ep)<<3 | coreReqForeignRecv
}

// EncodePMPFailure builds the raw register for a PMP-failure request.
func EncodePMPFailure(phys uint32, write bool, errCode uint32) Reg {
	r := Reg(phys)<<32 | Reg(errCode&0x1FFFF)<<4 | coreReqPMPFailure
	if write {
		r |= 1 << 3
	}
	return r
}

// DecodeCoreReq decodes a raw core-request register.
func DecodeCoreReq(req Reg) CoreReq {
	switch req & 0x7 {
	case coreReqForeignRecv:
		return CoreReq{
			Kind: CoreReqForeignReceive,
			Act:  ActId(req >> 48),
			Ep:   EpId((req >> 3) & 0xFFFF),
		}
	case coreReqPMPFailure:
		return CoreReq{
			Kind:  CoreReqPMPFailure,
			Phys:  uint32(req >> 32),
			Write: (req>>3)&0x1 != 0,
			Error: uint32((req >> 4) & 0x1FFFF),
		}
	default:
		return CoreReq{}
	}
}

// IRQKind is the source class of an interrupt taken by the core.
type IRQKind uint8

const (
	IRQCoreReq IRQKind = iota + 1
	IRQTimer
	IRQExternal
)

// IRQSource identifies the interrupt that trapped into the mux.
type IRQSource struct {
	Kind IRQKind
	Line IRQId
}

func (s IRQSource) String() string {
	switch s.Kind {
	case IRQCoreReq:
		return "tcu:core_req"
	case IRQTimer:
		return "tcu:timer"
	case IRQExternal:
		return fmt.Sprintf("ext:%d", s.Line)
	default:
		return "unknown"
	}
}
