package mux

import "tilemux/hal"

func (m *Mux) handleCoreReq(raw hal.Reg) {
	req := hal.DecodeCoreReq(raw)
	m.logf(LogCoreReqs, "got %s", req)

	switch req.Kind {
	case hal.CoreReqForeignReceive:
		m.foreignReceive(req.Act, req.Ep)
	case hal.CoreReqPMPFailure:
		m.logf(LogErr, "PMP failure: phys=%#x write=%t error=%d", req.Phys, req.Write, req.Error)
	default:
		m.logf(LogErr, "unknown core request %#x", raw)
	}

	m.tcu.SetCoreResp()
}

func (m *Mux) foreignReceive(id hal.ActId, ep hal.EpId) {
	a := m.get(id)
	if a == nil {
		m.logf(LogErr, "message on ep %d for unknown activity %d", ep, id)
		return
	}

	ok := true
	if a == m.cur {
		// the live register is the only copy; park idle's value there while we update ours
		live := m.xchg(m.idle.actReg)
		live, ok = addMsgs(live, 1)
		m.idle.actReg = m.xchg(live)
	} else {
		ok = a.addMsgs(1)
	}
	if !ok {
		m.logf(LogErr, "unread counter of activity %d saturated on ep %d", id, ep)
	}
	m.logf(LogForeignMsg, "added message on ep %d to activity %d (%d msgs)", ep, id, m.msgsOf(a))

	m.unblock(a, Event{Kind: EventMessage, Ep: ep})
}

func (m *Mux) msgsOf(a *Activity) uint16 {
	if a == m.cur {
		return hal.ActRegMsgs(m.tcu.CurActivity())
	}
	return a.Msgs()
}
