package mux

import (
	"fmt"
	"math"

	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/irqs"
	"tilemux/mux/tcu"
)

const (
	// IdleID runs whenever nothing else is ready.
	IdleID hal.ActId = 0xFFFE
	// OwnID is the mux itself; upcalls arrive on its endpoints.
	OwnID hal.ActId = 0xFFFF
	// MaxActivities bounds the ids of resident user activities.
	MaxActivities = 64
	// TimeSlice is the budget an activity gets per refill.
	TimeSlice uint64 = 1_000_000
)

// ActState is the scheduling state of an activity.
type ActState uint8

const (
	Blocked ActState = iota
	Ready
	Running
)

func (s ActState) String() string {
	switch s {
	case Blocked:
		return "blocked"
	case Ready:
		return "ready"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// EventKind is something that may end a block.
type EventKind uint8

const (
	EventMessage EventKind = iota
	EventInterrupt
	EventEpInvalid
	EventTimeout
	EventStart
)

// Event is passed to unblock. Ep and IRQ are set for messages and interrupts.
type Event struct {
	Kind EventKind
	Ep   kernel.EpId
	IRQ  hal.IRQId
}

func (e Event) String() string {
	switch e.Kind {
	case EventMessage:
		return fmt.Sprintf("Message(%d)", e.Ep)
	case EventInterrupt:
		return fmt.Sprintf("Interrupt(%d)", e.IRQ)
	case EventEpInvalid:
		return "EpInvalid"
	case EventTimeout:
		return "Timeout"
	case EventStart:
		return "Start"
	default:
		return "Unknown"
	}
}

// wait is the wake condition of a blocked activity. ep == kernel.InvalidEP
// and irq == irqs.Any mean "not waiting for a specific one".
type wait struct {
	ep      kernel.EpId
	irq     hal.IRQId
	timeout bool
}

func noWait() wait { return wait{ep: kernel.InvalidEP, irq: irqs.Any} }

// Stats are the accounting counters of an activity.
type Stats struct {
	CPUTime uint64
	CtxSws  uint64
}

// Activity is the scheduling record of one activity on this tile.
type Activity struct {
	id       hal.ActId
	actReg   hal.Reg
	rootPT   uint64
	epsStart kernel.EpId
	state    ActState
	started  bool
	wait     wait

	regs State
	cmd  tcu.CmdState

	budget    uint64
	scheduled uint64
	stats     Stats

	dying      bool
	notifyExit bool
	exitCode   uint64
}

func newActivity(id hal.ActId, epsStart kernel.EpId) *Activity {
	return &Activity{
		id:       id,
		actReg:   hal.ActReg(id, 0),
		epsStart: epsStart,
		state:    Blocked,
		wait:     noWait(),
		budget:   TimeSlice,
	}
}

func (a *Activity) ID() hal.ActId         { return a.id }
func (a *Activity) State() ActState       { return a.state }
func (a *Activity) Started() bool         { return a.started }
func (a *Activity) RootPT() uint64        { return a.rootPT }
func (a *Activity) EpsStart() kernel.EpId { return a.epsStart }
func (a *Activity) Stats() Stats          { return a.stats }
func (a *Activity) Budget() uint64        { return a.budget }

// ActReg returns the shadow of the activity register. It is only current
// while the activity is not resident.
func (a *Activity) ActReg() hal.Reg { return a.actReg }

// Msgs returns the unread-message count of the shadow register.
func (a *Activity) Msgs() uint16 { return hal.ActRegMsgs(a.actReg) }

// Regs returns the saved register file.
func (a *Activity) Regs() *State { return &a.regs }

// PendingCmd returns the command that is retried when the activity resumes.
func (a *Activity) PendingCmd() *tcu.Cmd { return a.cmd.Pending() }

// WaitEP returns the endpoint a blocked activity waits on.
func (a *Activity) WaitEP() (kernel.EpId, bool) {
	return a.wait.ep, a.wait.ep != kernel.InvalidEP
}

// ExitCode returns the exit status set by the exit call.
func (a *Activity) ExitCode() (uint64, bool) { return a.exitCode, a.dying && a.notifyExit }

func (a *Activity) String() string {
	return fmt.Sprintf("Activity[id=%d, state=%s, msgs=%d, budget=%d]", a.id, a.state, a.Msgs(), a.budget)
}

func (a *Activity) addMsgs(n uint16) bool {
	var ok bool
	a.actReg, ok = addMsgs(a.actReg, n)
	return ok
}

// addMsgs raises the unread count of reg by n. The count sticks at its
// maximum instead of wrapping; ok is false in that case.
func addMsgs(reg hal.Reg, n uint16) (hal.Reg, bool) {
	msgs := hal.ActRegMsgs(reg)
	if msgs > math.MaxUint16-n {
		return hal.ActReg(hal.ActRegId(reg), math.MaxUint16), false
	}
	return hal.ActReg(hal.ActRegId(reg), msgs+n), true
}

func (a *Activity) remMsgs(n uint16) {
	msgs := a.Msgs()
	if n > msgs {
		n = msgs
	}
	a.actReg = hal.ActReg(hal.ActRegId(a.actReg), msgs-n)
}

// canBlock decides whether a Block may proceed given the live message count.
func (a *Activity) canBlock(t hal.TCU, msgs uint16) bool {
	if a.wait.ep != kernel.InvalidEP {
		return !t.HasMsgs(a.wait.ep)
	}
	return msgs == 0
}

func (a *Activity) shouldUnblock(ev Event) bool {
	switch ev.Kind {
	case EventMessage:
		if a.wait.ep != kernel.InvalidEP {
			return ev.Ep == a.wait.ep
		}
		return a.wait.irq == irqs.Any
	case EventInterrupt:
		if a.wait.irq != irqs.Any {
			return ev.IRQ == a.wait.irq
		}
		return a.wait.ep == kernel.InvalidEP
	default:
		return true
	}
}

func (a *Activity) consumeTime(now uint64) {
	used := now - a.scheduled
	if now < a.scheduled {
		used = 0
	}
	if used >= a.budget {
		a.budget = 0
	} else {
		a.budget -= used
	}
	a.stats.CPUTime += used
	a.scheduled = now
}
