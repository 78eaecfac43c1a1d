package mux

import (
	"math/bits"

	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/eps"
	"tilemux/mux/proto"
	"tilemux/mux/tcu"
)

// The kernel may only map into [MapStart, MapEnd); below are the mux's
// receive buffers, above is the tile-local memory.
const (
	MapStart uint64 = 0x0020_0000
	MapEnd   uint64 = 0xF000_0000
)

// checkUpcalls handles kernel messages for the mux's own activity. It runs
// at every trap exit and loops until no messages are left.
func (m *Mux) checkUpcalls() {
	if m.own.Msgs() == 0 {
		return
	}

	g := tcu.NewGuard(m.tcu)
	defer g.Release()

	for {
		m.cur.actReg = m.xchg(m.own.actReg)

		if msg, ok := m.tcu.FetchMsg(kernel.EPUpcallRecv); ok {
			m.handleUpcall(msg)
		}
		// answers to our own notifications
		for {
			msg, ok := m.tcu.FetchMsg(kernel.EPKernelReply)
			if !ok {
				break
			}
			m.tcu.AckMsg(kernel.EPKernelReply, msg)
		}

		m.own.actReg = m.xchg(m.cur.actReg)
		if m.own.Msgs() == 0 {
			break
		}
	}
}

func (m *Mux) handleUpcall(msg *hal.Msg) {
	var res proto.Response
	req, err := proto.DecodeUpcall(msg.Payload())
	if err != nil {
		m.logf(LogErr, "malformed upcall: %v", err)
		res.Error = proto.CodeOf(err)
	} else {
		res.Val, err = m.dispatchUpcall(req)
		res.Error = proto.CodeOf(err)
	}

	if err := m.tcu.Reply(kernel.EPUpcallRecv, msg, res.Payload()); err != nil {
		m.logf(LogErr, "upcall reply failed: %v", err)
	}
	m.tcu.AckMsg(kernel.EPUpcallRecv, msg)
}

func (m *Mux) dispatchUpcall(req proto.Request) (uint64, error) {
	switch r := req.(type) {
	case proto.ActCtrl:
		m.logf(LogUpcalls, "upcall::act_ctrl(act=%d, op=%s, eps_start=%d)", r.Act, r.ActOp, r.EpsStart)
		return 0, m.actCtrl(r)
	case proto.Map:
		m.logf(LogUpcalls, "upcall::map(act=%d, virt=%#x, global=%#x, pages=%d, perm=%#x)",
			r.Act, r.Virt, r.Global, r.Pages, r.Perm)
		return 0, m.mapPages(r)
	case proto.Translate:
		m.logf(LogUpcalls, "upcall::translate(act=%d, virt=%#x, perm=%#x)", r.Act, r.Virt, r.Perm)
		return m.translate(r)
	case proto.RemMsgs:
		m.logf(LogUpcalls, "upcall::rem_msgs(act=%d, unread=%#x)", r.Act, r.UnreadMask)
		if a := m.user(r.Act); a != nil {
			a.remMsgs(uint16(bits.OnesCount64(r.UnreadMask)))
		}
		return 0, nil
	case proto.EpInval:
		m.logf(LogUpcalls, "upcall::ep_inval(act=%d, ep=%d)", r.Act, r.Ep)
		if a := m.user(r.Act); a != nil {
			m.unblock(a, Event{Kind: EventEpInvalid, Ep: r.Ep})
		}
		return 0, nil
	case proto.AllocEP:
		m.logf(LogUpcalls, "upcall::alloc_ep(act=%d, ep=%d)", r.Act, r.Ep)
		ep, err := m.eps.Alloc(hal.ActId(r.Act), r.Ep)
		if err != nil {
			return 0, err
		}
		return uint64(ep), nil
	case proto.FreeEP:
		m.logf(LogUpcalls, "upcall::free_ep(ep=%d)", r.Ep)
		e, err := m.eps.Free(r.Ep)
		if err != nil {
			return 0, err
		}
		if e.Gate != nil {
			m.logf(LogUpcalls, "detached %s gate from ep %d of activity %d", e.Gate.Rights, r.Ep, e.Act)
		}
		return 0, nil
	case proto.ResetStats:
		m.logf(LogUpcalls, "upcall::reset_stats()")
		m.resetStats()
		return 0, nil
	default:
		m.logf(LogErr, "unsupported upcall %s (%d)", req.Op(), uint64(req.Op()))
		return 0, proto.CodeNotSup
	}
}

func (m *Mux) user(id uint16) *Activity {
	if int(id) >= MaxActivities {
		return nil
	}
	return m.acts[id]
}

func (m *Mux) actCtrl(r proto.ActCtrl) error {
	id := hal.ActId(r.Act)
	switch r.ActOp {
	case proto.ActInit:
		return m.add(id, r.EpsStart)
	case proto.ActStart:
		a := m.user(r.Act)
		if a == nil || a == m.cur || a.started {
			return proto.CodeInvArgs
		}
		m.start(a)
		return nil
	case proto.ActStop:
		// the resident activity is killed at the next scheduling point
		m.removeActivity(id, 0, false)
		return nil
	default:
		return proto.CodeInvArgs
	}
}

func (m *Mux) mapPages(r proto.Map) error {
	if r.Pages > (MapEnd-MapStart)/hal.PageSize {
		return proto.CodeInvArgs
	}
	end := r.Virt + r.Pages*hal.PageSize
	if r.Virt < MapStart || end < r.Virt || end > MapEnd {
		return proto.CodeInvArgs
	}
	a := m.user(r.Act)
	if a == nil {
		return nil
	}
	if a.rootPT == 0 {
		return proto.CodeNotSup
	}
	perm := hal.PageFlags(r.Perm)
	if perm&hal.PageRWX == 0 {
		// unmapped memory has to be read fresh the next time
		m.tcu.FlushCache()
	} else {
		perm |= hal.PageU
	}
	if err := m.pager.Map(a.id, r.Virt, r.Global, int(r.Pages), perm); err != nil {
		m.logf(LogErr, "map for activity %d: %v", a.id, err)
		return proto.CodeInvArgs
	}
	return nil
}

func (m *Mux) translate(r proto.Translate) (uint64, error) {
	a := m.user(r.Act)
	if a == nil {
		return 0, proto.CodeInvArgs
	}
	if a.rootPT == 0 {
		return 0, proto.CodeNotSup
	}
	phys, err := m.pager.Translate(a.id, r.Virt, hal.PageFlags(r.Perm)|hal.PageU)
	if err != nil {
		return 0, proto.CodeNoPerm
	}
	return phys, nil
}

func (m *Mux) resetStats() {
	now := m.tcu.Nanotime()
	for _, a := range append(m.Activities(), m.idle) {
		a.stats = Stats{}
		a.scheduled = now
	}
}

// BindGate records the gate the kernel configured on a reserved endpoint.
func (m *Mux) BindGate(ep kernel.EpId, g eps.Gate) error {
	return m.eps.Bind(ep, g)
}
