package proto

import (
	"encoding/binary"

	"tilemux/kernel"
)

// Upcall identifies a kernel-to-mux request, carried in word 0.
type Upcall uint64

const (
	UpcallActCtrl Upcall = iota
	UpcallMap
	UpcallTranslate
	UpcallRemMsgs
	UpcallEpInval
	UpcallAllocEP
	UpcallFreeEP
	UpcallResetStats
)

func (u Upcall) String() string {
	switch u {
	case UpcallActCtrl:
		return "act_ctrl"
	case UpcallMap:
		return "map"
	case UpcallTranslate:
		return "translate"
	case UpcallRemMsgs:
		return "rem_msgs"
	case UpcallEpInval:
		return "ep_inval"
	case UpcallAllocEP:
		return "alloc_ep"
	case UpcallFreeEP:
		return "free_ep"
	case UpcallResetStats:
		return "reset_stats"
	default:
		return "unknown"
	}
}

// ActOp is the operation of an activity-control upcall.
type ActOp uint64

const (
	ActInit ActOp = iota
	ActStart
	ActStop
)

func (o ActOp) String() string {
	switch o {
	case ActInit:
		return "init"
	case ActStart:
		return "start"
	case ActStop:
		return "stop"
	default:
		return "unknown"
	}
}

// KCall identifies a mux-to-kernel notification.
type KCall uint64

const (
	KCallExit KCall = iota
)

// Operation is a pexcall opcode, carried in the ArgOp register.
type Operation uint64

const (
	OpSleep Operation = iota
	OpExit
	OpYield
	OpNoop
	OpRegIRQ
	OpWait
	OpFlushInv
)

func (o Operation) String() string {
	switch o {
	case OpSleep:
		return "sleep"
	case OpExit:
		return "exit"
	case OpYield:
		return "yield"
	case OpNoop:
		return "noop"
	case OpRegIRQ:
		return "reg_irq"
	case OpWait:
		return "wait"
	case OpFlushInv:
		return "flush_inv"
	default:
		return "unknown"
	}
}

// InvalidIRQ means "no specific IRQ" in pexcall arguments.
const InvalidIRQ = ^uint64(0)

func putWords(ws ...uint64) []byte {
	buf := make([]byte, 8*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return buf
}

func getWords(payload []byte, n int) ([]uint64, bool) {
	if len(payload) < 8*n {
		return nil, false
	}
	ws := make([]uint64, n)
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint64(payload[i*8:])
	}
	return ws, true
}

// Response is the reply to every upcall.
//
// Layout (little-endian):
//   - u64: error code
//   - u64: value
type Response struct {
	Error Code
	Val   uint64
}

func (r Response) Payload() []byte {
	return putWords(uint64(r.Error), r.Val)
}

// DecodeResponse decodes a Response payload.
func DecodeResponse(payload []byte) (Response, bool) {
	ws, ok := getWords(payload, 2)
	if !ok {
		return Response{}, false
	}
	return Response{Error: Code(ws[0]), Val: ws[1]}, true
}

// ExitNotice tells the kernel that an activity has terminated.
//
// Layout (little-endian):
//   - u64: KCallExit
//   - u64: activity id
//   - u64: exit code
type ExitNotice struct {
	Act  uint16
	Code uint64
}

func (n ExitNotice) Payload() []byte {
	return putWords(uint64(KCallExit), uint64(n.Act), n.Code)
}

// DecodeExitNotice decodes an ExitNotice payload.
func DecodeExitNotice(payload []byte) (ExitNotice, bool) {
	ws, ok := getWords(payload, 3)
	if !ok || KCall(ws[0]) != KCallExit {
		return ExitNotice{}, false
	}
	return ExitNotice{Act: uint16(ws[1]), Code: ws[2]}, true
}

// EpArg converts a wire word into an endpoint id, mapping out-of-range values
// to kernel.InvalidEP.
func EpArg(w uint64) kernel.EpId {
	if w >= uint64(kernel.InvalidEP) {
		return kernel.InvalidEP
	}
	return kernel.EpId(w)
}
