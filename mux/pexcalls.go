package mux

import (
	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/irqs"
	"tilemux/mux/proto"
)

// NoTimeout disables the timeout of a Wait call.
const NoTimeout = ^uint64(0)

// Call is a decoded pexcall. The set of implementations is closed.
type Call interface {
	Op() proto.Operation
	call()
}

type (
	// Sleep waits for delay ns and/or a message on Ep.
	Sleep struct {
		Delay uint64
		Ep    kernel.EpId
	}
	// Exit terminates the caller.
	Exit struct {
		Code uint64
	}
	// Yield gives up the core if someone else is ready.
	Yield struct{}
	// Noop does nothing.
	Noop struct{}
	// Wait waits for a message on Ep, the interrupt IRQ, or both, bounded by Timeout.
	Wait struct {
		Ep      kernel.EpId
		IRQ     hal.IRQId
		Timeout uint64
	}
	// RegIRQ binds an interrupt line to the caller.
	RegIRQ struct {
		IRQ hal.IRQId
	}
	// FlushInv writes back and invalidates the caches.
	FlushInv struct{}
	// UnknownCall carries an unsupported opcode.
	UnknownCall struct {
		Opcode uint64
	}
)

func (Sleep) Op() proto.Operation         { return proto.OpSleep }
func (Exit) Op() proto.Operation          { return proto.OpExit }
func (Yield) Op() proto.Operation         { return proto.OpYield }
func (Noop) Op() proto.Operation          { return proto.OpNoop }
func (Wait) Op() proto.Operation          { return proto.OpWait }
func (RegIRQ) Op() proto.Operation        { return proto.OpRegIRQ }
func (FlushInv) Op() proto.Operation      { return proto.OpFlushInv }
func (c UnknownCall) Op() proto.Operation { return proto.Operation(c.Opcode) }

func (Sleep) call()       {}
func (Exit) call()        {}
func (Yield) call()       {}
func (Noop) call()        {}
func (Wait) call()        {}
func (RegIRQ) call()      {}
func (FlushInv) call()    {}
func (UnknownCall) call() {}

// DecodeCall decodes the pexcall in a trap register file.
func DecodeCall(s *State) Call {
	switch op := proto.Operation(s.R[ArgOp]); op {
	case proto.OpSleep:
		return Sleep{Delay: s.R[ArgA], Ep: proto.EpArg(s.R[ArgB])}
	case proto.OpExit:
		return Exit{Code: s.R[ArgA]}
	case proto.OpYield:
		return Yield{}
	case proto.OpNoop:
		return Noop{}
	case proto.OpWait:
		return Wait{Ep: proto.EpArg(s.R[ArgA]), IRQ: irqArg(s.R[ArgB]), Timeout: s.R[ArgC]}
	case proto.OpRegIRQ:
		return RegIRQ{IRQ: irqArg(s.R[ArgA])}
	case proto.OpFlushInv:
		return FlushInv{}
	default:
		return UnknownCall{Opcode: uint64(op)}
	}
}

func irqArg(w uint64) hal.IRQId {
	if w >= irqs.MaxIRQs {
		return irqs.Any
	}
	return hal.IRQId(w)
}

func (m *Mux) handleCall(s *State) {
	c := DecodeCall(s)
	val, err := m.dispatchCall(c)
	if err != nil {
		m.logf(LogCalls, "pexcall %s failed: %v", c.Op(), err)
		s.R[ArgOp] = proto.CodeOf(err).Negated()
		return
	}
	s.R[ArgOp] = val
}

func (m *Mux) dispatchCall(c Call) (uint64, error) {
	cur := m.cur
	if cur == m.idle {
		return 0, proto.CodeNoPerm
	}

	switch c := c.(type) {
	case Sleep:
		m.logf(LogCalls, "pexcall::sleep(delay=%d, ep=%d)", c.Delay, c.Ep)
		if c.Delay == 0 && c.Ep == kernel.InvalidEP {
			if m.hasReady() {
				m.regScheduling(ActionYield)
			}
			return 0, nil
		}
		if c.Delay != 0 {
			m.timer.Add(cur.id, c.Delay)
		}
		m.block(cur, c.Ep, irqs.Any, c.Delay != 0)
		return 0, nil

	case Exit:
		m.logf(LogCalls, "pexcall::exit(code=%d)", c.Code)
		m.removeActivity(cur.id, c.Code, true)
		return 0, nil

	case Yield:
		m.logf(LogCalls, "pexcall::yield()")
		if m.hasReady() {
			m.regScheduling(ActionYield)
		}
		return 0, nil

	case Noop:
		m.logf(LogCalls, "pexcall::noop()")
		return 0, nil

	case Wait:
		m.logf(LogCalls, "pexcall::wait(ep=%d, irq=%d, timeout=%d)", c.Ep, c.IRQ, c.Timeout)
		if (c.Ep == kernel.InvalidEP || c.IRQ != irqs.Any) && m.irqs.Wait(cur.id, c.IRQ) {
			return 0, nil
		}
		timeout := c.Timeout != NoTimeout
		if timeout {
			m.timer.Add(cur.id, c.Timeout)
		}
		m.block(cur, c.Ep, c.IRQ, timeout)
		return 0, nil

	case RegIRQ:
		m.logf(LogCalls, "pexcall::reg_irq(irq=%d)", c.IRQ)
		if c.IRQ == irqs.Any {
			return 0, proto.CodeInvArgs
		}
		if _, owned := m.irqs.Owner(c.IRQ); owned {
			return 0, proto.CodeExists
		}
		m.irqs.Register(cur.id, c.IRQ)
		return 0, nil

	case FlushInv:
		m.logf(LogCalls, "pexcall::flush_inv()")
		m.tcu.FlushCache()
		return 0, nil

	default:
		m.logf(LogErr, "unsupported pexcall %d", uint64(c.Op()))
		return 0, proto.CodeNotSup
	}
}
