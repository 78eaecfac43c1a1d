package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var (
	ErrNoEndpoint = errors.New("endpoint not configured")
	ErrUnmapped   = errors.New("address not mapped")
)

// Clock is the tile's free-running nanosecond time source.
type Clock interface {
	Nanotime() uint64
}

// PageSize is the granularity of page mappings.
const PageSize = 4096

// PageFlags are the access bits of a page mapping.
type PageFlags uint8

const (
	PageR PageFlags = 1 << iota
	PageW
	PageX
	PageU

	PageRW  = PageR | PageW
	PageRWX = PageR | PageW | PageX
)

// Pager is the address-space collaborator. The mux only asks it to create,
// map, translate and switch; page-table layout and policy live behind it.
type Pager interface {
	NewAddrSpace(act ActId) (root uint64, err error)
	FreeAddrSpace(act ActId)
	Map(act ActId, virt, global uint64, pages int, perm PageFlags) error
	Translate(act ActId, virt uint64, perm PageFlags) (uint64, error)
	SwitchTo(root uint64)
}

// TCU is the privileged view of the tile's communication unit.
//
// There is exactly one command-register triple and one current-activity
// register per tile; everything the mux does to them goes through here.
type TCU interface {
	Clock

	// AbortCmd aborts the command in flight (if any) and returns the
	// registers needed to repeat it later.
	AbortCmd() (CmdRegs, error)
	// WriteCmdArgs restores ARG1 and the data registers without starting anything.
	WriteCmdArgs(arg1, dataAddr, dataSize uint64)
	// RetryCmd restarts a previously aborted command.
	RetryCmd(command Reg) error
	// Fence orders preceding shadow writes before subsequent register writes.
	Fence()

	// XchgActivity installs next as current activity and returns the
	// previous live value, including its message count.
	XchgActivity(next Reg) (Reg, error)
	CurActivity() Reg

	// SetTimer arms the one-shot timer to fire in delayNs; 0 disarms it.
	SetTimer(delayNs uint64) error
	InvalidateTLB()
	FlushCache()

	CoreReq() (Reg, bool)
	SetCoreResp()

	EnableIRQ(irq IRQId)
	DisableIRQ(irq IRQId)

	FetchMsg(ep EpId) (*Msg, bool)
	AckMsg(ep EpId, msg *Msg)
	Reply(ep EpId, msg *Msg, payload []byte) error
	Send(ep EpId, payload []byte, replyEP EpId) error
	HasMsgs(ep EpId) bool
}

// HAL provides the only contact point between the mux and the outside world.
type HAL interface {
	Logger() Logger
	TCU() TCU
	Pager() Pager
}
