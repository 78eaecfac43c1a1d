package mux

import "tilemux/hal"

// schedule carries out a scheduling decision for the current activity.
//
// The old activity's command is saved while it is still resident, then
// the activity registers are exchanged. A Block that finds unread
// messages keeps the old activity running instead.
func (m *Mux) schedule(action Action) {
	old := m.cur
	if (action == ActionYield || action == ActionPreempt) && !m.hasReady() {
		return
	}

	now := m.tcu.Nanotime()
	next := m.popReady()
	if next == nil {
		next = m.idle
	}
	if next == old {
		return
	}

	if old != m.idle {
		old.consumeTime(now)
	}
	old.cmd.Save(m.tcu)
	oldReg := m.xchg(next.actReg)

	if action == ActionBlock && !old.canBlock(m.tcu, hal.ActRegMsgs(oldReg)) {
		if old.budget > 0 || next == m.idle {
			next.actReg = m.xchg(oldReg)
			if next != m.idle {
				m.pushReadyFront(next)
			}
			old.cmd.Restore(m.tcu)
			m.logf(LogCtxSws, "activity %d has messages, continuing", old.id)
			m.resetWait(old)
			return
		}
		action = ActionPreempt
	}
	old.actReg = oldReg

	if next.rootPT != 0 && next.rootPT != old.rootPT {
		m.pager.SwitchTo(next.rootPT)
		m.tcu.InvalidateTLB()
	}

	m.cur = next
	next.state = Running
	next.scheduled = now
	if next.budget == 0 {
		next.budget = m.cfg.TimeSlice
	}
	old.stats.CtxSws++

	m.logf(LogCtxSws, "switching from %d to %d: %s old activity", old.id, next.id, action)
	switch {
	case old == m.idle:
		old.state = Blocked
	case action == ActionBlock:
		old.state = Blocked
	case action == ActionKill:
		old.state = Blocked
		m.teardown(old)
	default:
		m.makeReady(old)
	}

	next.cmd.Restore(m.tcu)
	m.resetWait(next)
	m.env.SetOthersReady(m.hasReady())
}

// resetWait clears the wake condition of an activity that runs again.
func (m *Mux) resetWait(a *Activity) {
	if a.wait.timeout {
		m.timer.Remove(a.id)
	}
	m.irqs.Unwait(a.id)
	a.wait = noWait()
}

func (m *Mux) xchg(next hal.Reg) hal.Reg {
	old, err := m.tcu.XchgActivity(next)
	if err != nil {
		Fatalf("activity exchange failed: %v", err)
	}
	return old
}
