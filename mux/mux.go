// Package mux time-shares one tile among activities.
//
// All entry points (TMCall, ExtIRQ, UnexpectedIRQ) are trap handlers: the
// caller serializes them, and the Mux takes no locks. Each returns the
// register file of the activity to resume.
package mux

import (
	"sync/atomic"

	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/eps"
	"tilemux/mux/irqs"
	"tilemux/mux/timer"
)

// Config selects optional behavior of a Mux.
type Config struct {
	LogFlags LogFlags
	// VirtMem gives every activity its own address space.
	VirtMem bool
	// TimeSlice overrides the default budget.
	TimeSlice uint64
}

// Mux is the per-tile multiplexer state.
type Mux struct {
	cfg   Config
	tcu   hal.TCU
	pager hal.Pager
	log   hal.Logger
	env   *kernel.Env

	acts  [MaxActivities]*Activity
	own   *Activity
	idle  *Activity
	cur   *Activity
	ready []*Activity
	exits map[hal.ActId]uint64

	timer *timer.Timer
	irqs  *irqs.Registry
	eps   *eps.Table

	sched     Action
	schedPend bool

	halted atomic.Bool
}

// New creates the mux of a tile and makes the idle activity resident.
func New(h hal.HAL, env *kernel.Env, cfg Config) *Mux {
	if cfg.TimeSlice == 0 {
		cfg.TimeSlice = TimeSlice
	}
	if env == nil {
		env = &kernel.Env{}
	}
	t := h.TCU()
	m := &Mux{
		cfg:   cfg,
		tcu:   t,
		pager: h.Pager(),
		log:   h.Logger(),
		env:   env,
		own:   newActivity(OwnID, kernel.EPUpcallRecv),
		idle:  newActivity(IdleID, kernel.InvalidEP),
		timer: timer.New(t),
		irqs:  irqs.New(t),
		eps:   eps.Default(),
		exits: make(map[hal.ActId]uint64),
	}
	m.own.started = true
	m.idle.started = true

	// messages for us may already have arrived; keep their count
	old, err := t.XchgActivity(m.idle.actReg)
	if err != nil {
		Fatalf("initial activity exchange failed: %v", err)
	}
	if hal.ActRegId(old) == OwnID {
		m.own.actReg = old
	}
	m.idle.state = Running
	m.idle.scheduled = t.Nanotime()
	m.cur = m.idle
	env.SetOthersReady(false)
	return m
}

// Current returns the resident activity (possibly the idle activity).
func (m *Mux) Current() *Activity { return m.cur }

// Own returns the mux's own activity record.
func (m *Mux) Own() *Activity { return m.own }

// Idle returns the idle activity record.
func (m *Mux) Idle() *Activity { return m.idle }

// Activity returns the resident user activity id.
func (m *Mux) Activity(id hal.ActId) (*Activity, bool) {
	a := m.get(id)
	return a, a != nil
}

// ReadyIDs returns the ready queue in scheduling order.
func (m *Mux) ReadyIDs() []hal.ActId {
	ids := make([]hal.ActId, len(m.ready))
	for i, a := range m.ready {
		ids[i] = a.id
	}
	return ids
}

// Activities returns all user activities in id order.
func (m *Mux) Activities() []*Activity {
	var out []*Activity
	for _, a := range m.acts {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

func (m *Mux) Timer() *timer.Timer  { return m.timer }
func (m *Mux) IRQs() *irqs.Registry { return m.irqs }
func (m *Mux) EPs() *eps.Table      { return m.eps }
func (m *Mux) Env() *kernel.Env     { return m.env }

// TMCall handles a trap-based call of the current activity. The opcode and
// arguments are read from s and the result is written back into s.
func (m *Mux) TMCall(s *State) *State {
	if m.halted.Load() {
		return nil
	}
	m.handleCall(s)
	m.cur.regs = *s
	return m.leave()
}

// ExtIRQ handles an interrupt taken while the current activity ran.
func (m *Mux) ExtIRQ(src hal.IRQSource) *State {
	if m.halted.Load() {
		return nil
	}
	switch src.Kind {
	case hal.IRQTimer:
		m.logf(LogTimer, "timer irq at %d", m.tcu.Nanotime())
		m.consumeTime()
		m.timer.Trigger(func(id hal.ActId) {
			if a := m.get(id); a != nil {
				m.logf(LogTimer, "timeout for activity %d", id)
				// the entry is gone already
				a.wait.timeout = false
				m.unblock(a, Event{Kind: EventTimeout})
			}
		})

	case hal.IRQCoreReq:
		if req, ok := m.tcu.CoreReq(); ok {
			m.handleCoreReq(req)
		}

	case hal.IRQExternal:
		m.logf(LogIRQs, "irq %d asserted", src.Line)
		m.irqs.Signal(src.Line, func(owner hal.ActId) bool {
			a := m.get(owner)
			if a == nil || a.state != Blocked {
				return false
			}
			return m.unblock(a, Event{Kind: EventInterrupt, IRQ: src.Line})
		})

	default:
		m.logf(LogErr, "unexpected irq %s", src)
	}
	return m.leave()
}

// UnexpectedIRQ handles a trap vector the mux has no handler for. The
// save/restore invariants can no longer be trusted, so the tile halts.
func (m *Mux) UnexpectedIRQ(vector uint64) *State {
	if m.halted.Load() {
		return nil
	}
	Fatalf("unexpected trap vector %d in activity %d: %s", vector, m.cur.id, &m.cur.regs)
	return nil
}

// Action is a pending scheduling decision. Later registrations only
// override weaker ones.
type Action uint8

const (
	ActionYield Action = iota
	ActionPreempt
	ActionBlock
	ActionKill
)

func (a Action) String() string {
	switch a {
	case ActionYield:
		return "Yield"
	case ActionPreempt:
		return "Preempt"
	case ActionBlock:
		return "Block"
	case ActionKill:
		return "Kill"
	default:
		return "Unknown"
	}
}

func (m *Mux) regScheduling(a Action) {
	if m.schedPend && m.sched >= a {
		return
	}
	m.sched = a
	m.schedPend = true
}

// SchedulingPending reports whether the next trap exit will schedule.
func (m *Mux) SchedulingPending() bool { return m.schedPend }

func (m *Mux) leave() *State {
	m.checkUpcalls()
	if m.schedPend {
		a := m.sched
		m.schedPend = false
		m.schedule(a)
	}
	m.armBudget()
	return &m.cur.regs
}
