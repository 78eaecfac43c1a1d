package mux

import (
	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/proto"
	"tilemux/mux/tcu"
)

func (m *Mux) get(id hal.ActId) *Activity {
	switch {
	case id == OwnID:
		return m.own
	case id == IdleID:
		return m.idle
	case int(id) < MaxActivities:
		return m.acts[id]
	default:
		return nil
	}
}

func (m *Mux) hasReady() bool { return len(m.ready) > 0 }

// add creates a blocked, not yet started activity.
func (m *Mux) add(id hal.ActId, epsStart kernel.EpId) error {
	if int(id) >= MaxActivities {
		return proto.CodeInvArgs
	}
	if m.acts[id] != nil {
		return proto.CodeExists
	}
	a := newActivity(id, epsStart)
	a.budget = m.cfg.TimeSlice
	if m.cfg.VirtMem {
		root, err := m.pager.NewAddrSpace(id)
		if err != nil {
			m.logf(LogErr, "address space for activity %d: %v", id, err)
			return proto.CodeNoSpace
		}
		a.rootPT = root
	}
	m.acts[id] = a
	delete(m.exits, id)
	m.logf(LogActs, "created activity %d (eps from %d, root=%#x)", id, epsStart, a.rootPT)
	return nil
}

func (m *Mux) start(a *Activity) {
	if a.rootPT != 0 {
		// make the fresh address space visible before the activity runs
		m.pager.SwitchTo(a.rootPT)
		m.tcu.InvalidateTLB()
		if m.cur.rootPT != 0 {
			m.pager.SwitchTo(m.cur.rootPT)
		} else {
			m.pager.SwitchTo(0)
		}
	}
	a.started = true
	m.logf(LogActs, "starting activity %d", a.id)
	m.unblock(a, Event{Kind: EventStart})
}

// removeActivity tears down a non-resident activity, or marks the resident
// one for teardown at the next scheduling point.
func (m *Mux) removeActivity(id hal.ActId, code uint64, notify bool) {
	a := m.get(id)
	if a == nil || a == m.own || a == m.idle {
		return
	}
	if a == m.cur {
		if !a.dying {
			a.dying = true
			a.notifyExit = notify
			a.exitCode = code
		}
		m.regScheduling(ActionKill)
		return
	}
	if a.state == Ready {
		m.dropReady(a)
	}
	a.dying = true
	a.notifyExit = notify
	a.exitCode = code
	m.teardown(a)
}

// teardown releases everything an activity owns. It must not be resident.
func (m *Mux) teardown(a *Activity) {
	m.timer.Remove(a.id)
	m.irqs.Remove(a.id)
	freed := m.eps.FreeAll(a.id)
	if a.rootPT != 0 {
		m.pager.FreeAddrSpace(a.id)
	}
	// the next owner of this memory must not see stale lines
	m.tcu.FlushCache()
	m.acts[a.id] = nil
	m.logf(LogActs, "removed activity %d with status %d (freed eps %v)", a.id, a.exitCode, freed)

	if a.notifyExit {
		m.exits[a.id] = a.exitCode
		m.sendExit(a)
	}
}

func (m *Mux) sendExit(a *Activity) {
	g := tcu.NewGuard(m.tcu)
	defer g.Release()

	notice := proto.ExitNotice{Act: uint16(a.id), Code: a.exitCode}
	if hal.ActRegId(m.tcu.CurActivity()) == OwnID {
		if err := m.tcu.Send(kernel.EPKernelSend, notice.Payload(), kernel.EPKernelReply); err != nil {
			m.logf(LogErr, "exit notification for activity %d: %v", a.id, err)
		}
		return
	}

	old, err := m.tcu.XchgActivity(m.own.actReg)
	if err != nil {
		Fatalf("exchange to own activity failed: %v", err)
	}
	if err := m.tcu.Send(kernel.EPKernelSend, notice.Payload(), kernel.EPKernelReply); err != nil {
		m.logf(LogErr, "exit notification for activity %d: %v", a.id, err)
	}
	own, err := m.tcu.XchgActivity(old)
	if err != nil {
		Fatalf("exchange back from own activity failed: %v", err)
	}
	m.own.actReg = own
}

func (m *Mux) makeReady(a *Activity) {
	a.state = Ready
	m.ready = append(m.ready, a)
}

func (m *Mux) popReady() *Activity {
	if len(m.ready) == 0 {
		return nil
	}
	a := m.ready[0]
	m.ready[0] = nil
	m.ready = m.ready[1:]
	return a
}

func (m *Mux) pushReadyFront(a *Activity) {
	a.state = Ready
	m.ready = append([]*Activity{a}, m.ready...)
}

func (m *Mux) dropReady(a *Activity) {
	for i, r := range m.ready {
		if r == a {
			m.ready = append(m.ready[:i], m.ready[i+1:]...)
			return
		}
	}
}

// block sets the wake condition of the current activity and schedules it away.
func (m *Mux) block(a *Activity, ep kernel.EpId, irq hal.IRQId, timeout bool) {
	m.logf(LogCtxSws, "block activity %d for ep=%d irq=%d timeout=%t", a.id, ep, irq, timeout)
	a.wait = wait{ep: ep, irq: irq, timeout: timeout}
	if a.state == Running {
		m.regScheduling(ActionBlock)
	}
}

// unblock delivers ev to a and reports whether a went from Blocked to Ready.
func (m *Mux) unblock(a *Activity, ev Event) bool {
	if !a.started || a == m.own || a == m.idle {
		return false
	}
	if !a.shouldUnblock(ev) {
		m.logf(LogCtxSws, "activity %d ignores %s", a.id, ev)
		return false
	}
	if a.state != Blocked {
		return false
	}
	m.logf(LogCtxSws, "unblock activity %d for %s", a.id, ev)
	if ev.Kind != EventTimeout && a.wait.timeout {
		m.timer.Remove(a.id)
		a.wait.timeout = false
	}
	if ev.Kind != EventInterrupt {
		m.irqs.Unwait(a.id)
	}
	m.makeReady(a)
	if m.cur == m.idle {
		m.regScheduling(ActionYield)
	}
	return true
}

// consumeTime charges the current activity and preempts it when its budget is gone.
func (m *Mux) consumeTime() {
	if m.cur == m.idle {
		return
	}
	m.cur.consumeTime(m.tcu.Nanotime())
	if m.cur.budget == 0 && m.hasReady() {
		m.regScheduling(ActionPreempt)
	}
}

// armBudget lets the timer fire when the running activity's slice ends,
// as long as someone else is waiting for the core.
func (m *Mux) armBudget() {
	if m.cur == m.idle || !m.hasReady() {
		m.timer.Reprogram(0, false)
		return
	}
	m.timer.Reprogram(m.cur.scheduled+m.cur.budget, true)
}

// ExitStatus returns the code an activity passed to exit.
func (m *Mux) ExitStatus(id hal.ActId) (uint64, bool) {
	code, ok := m.exits[id]
	return code, ok
}
