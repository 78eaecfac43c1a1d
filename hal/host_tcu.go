//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"sync"

	"tilemux/kernel"
)

var (
	ErrCmdBusy    = errors.New("command in flight")
	ErrRecvFull   = errors.New("receive buffer full")
	ErrKernelFull = errors.New("kernel inbox full")
)

// HostStats counts privileged operations performed on a HostTCU.
type HostStats struct {
	Aborts           int
	Retries          int
	Fences           int
	Xchgs            int
	TimerWrites      int
	TLBInvalidations int
	CacheFlushes     int
	CoreResps        int
}

type recvEP struct {
	owner ActId
	q     kernel.Mailbox
}

// HostTCU simulates the privileged and unprivileged TCU registers of one tile.
//
// The mux calls the TCU methods; the simulator drives the other side
// (Deliver, AssertIRQ, StartCmd, NextIRQ).
type HostTCU struct {
	mu    sync.Mutex
	clock Clock
	tile  uint16
	out   *kernel.Mailbox

	cur Reg
	cmd CmdRegs
	// fenced is set by Fence and consumed by the next RetryCmd.
	fenced        bool
	unfencedRetry bool

	timerArmed    bool
	timerDeadline uint64
	timerDelay    uint64

	coreReqs []Reg

	irqEnabled uint64
	irqLatched uint64
	irqPending []IRQId

	eps       [kernel.TotalEPs]*recvEP
	nextLabel uint64

	completed []CmdRegs
	stats     HostStats
}

// NewHostTCU creates a TCU whose outgoing kernel messages land in out.
func NewHostTCU(tile uint16, clock Clock, out *kernel.Mailbox) *HostTCU {
	// after reset the core runs with the mux's own activity id
	return &HostTCU{clock: clock, tile: tile, out: out, cur: ActIdMask, nextLabel: 1}
}

func (t *HostTCU) Nanotime() uint64 { return t.clock.Nanotime() }

// Stats returns a copy of the operation counters.
func (t *HostTCU) Stats() HostStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// StartCmd starts an unprivileged command on behalf of the running activity.
func (t *HostTCU) StartCmd(regs CmdRegs) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd.InFlight() {
		return ErrCmdBusy
	}
	t.cmd = regs
	return nil
}

// CompleteCmd finishes the command in flight, if any.
func (t *HostTCU) CompleteCmd() (CmdRegs, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cmd.InFlight() {
		return CmdRegs{}, false
	}
	done := t.cmd
	t.completed = append(t.completed, done)
	t.cmd.Command = BuildCmd(0, CmdIdle, 0)
	return done, true
}

// Cmd returns the live command registers.
func (t *HostTCU) Cmd() CmdRegs {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cmd
}

// UnfencedRetry reports whether a retry was ever issued without a preceding fence.
func (t *HostTCU) UnfencedRetry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unfencedRetry
}

func (t *HostTCU) AbortCmd() (CmdRegs, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Aborts++
	saved := t.cmd
	// the handler is free to use all registers afterwards
	t.cmd = CmdRegs{}
	return saved, nil
}

func (t *HostTCU) WriteCmdArgs(arg1, dataAddr, dataSize uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cmd.Arg1 = arg1
	t.cmd.DataAddr = dataAddr
	t.cmd.DataSize = dataSize
}

func (t *HostTCU) RetryCmd(command Reg) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd.InFlight() {
		return fmt.Errorf("retry %s: %w", CmdOp(command), ErrCmdBusy)
	}
	if !t.fenced {
		t.unfencedRetry = true
	}
	t.fenced = false
	t.stats.Retries++
	t.cmd.Command = command
	return nil
}

func (t *HostTCU) Fence() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Fences++
	t.fenced = true
}

func (t *HostTCU) XchgActivity(next Reg) (Reg, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Xchgs++
	old := t.cur
	t.cur = next
	return old, nil
}

func (t *HostTCU) CurActivity() Reg {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

func (t *HostTCU) SetTimer(delayNs uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TimerWrites++
	t.timerDelay = delayNs
	if delayNs == 0 {
		t.timerArmed = false
		return nil
	}
	t.timerArmed = true
	t.timerDeadline = t.clock.Nanotime() + delayNs
	return nil
}

// Timer returns the last programmed delay and the absolute deadline, if armed.
func (t *HostTCU) Timer() (delay, deadline uint64, armed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timerDelay, t.timerDeadline, t.timerArmed
}

func (t *HostTCU) InvalidateTLB() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TLBInvalidations++
}

func (t *HostTCU) FlushCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CacheFlushes++
}

func (t *HostTCU) CoreReq() (Reg, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.coreReqs) == 0 {
		return 0, false
	}
	return t.coreReqs[0], true
}

func (t *HostTCU) SetCoreResp() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CoreResps++
	if len(t.coreReqs) > 0 {
		t.coreReqs = t.coreReqs[1:]
	}
}

// InjectCoreReq queues a raw core request, e.g. a PMP failure.
func (t *HostTCU) InjectCoreReq(req Reg) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.coreReqs = append(t.coreReqs, req)
}

func (t *HostTCU) EnableIRQ(irq IRQId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bit := uint64(1) << irq
	t.irqEnabled |= bit
	if t.irqLatched&bit != 0 {
		t.irqLatched &^= bit
		t.irqPending = append(t.irqPending, irq)
	}
}

func (t *HostTCU) DisableIRQ(irq IRQId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.irqEnabled &^= uint64(1) << irq
}

// IRQEnabled returns the controller's enable mask.
func (t *HostTCU) IRQEnabled() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.irqEnabled
}

// AssertIRQ raises an external line. A disabled line stays latched until enabled.
func (t *HostTCU) AssertIRQ(irq IRQId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bit := uint64(1) << irq
	if t.irqEnabled&bit != 0 {
		t.irqPending = append(t.irqPending, irq)
		return
	}
	t.irqLatched |= bit
}

// NextIRQ returns the next interrupt the core would take: core requests
// first, then an expired timer, then external lines in assertion order.
func (t *HostTCU) NextIRQ() (IRQSource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.coreReqs) > 0 {
		return IRQSource{Kind: IRQCoreReq}, true
	}
	if t.timerArmed && t.clock.Nanotime() >= t.timerDeadline {
		t.timerArmed = false
		return IRQSource{Kind: IRQTimer}, true
	}
	for len(t.irqPending) > 0 {
		irq := t.irqPending[0]
		t.irqPending = t.irqPending[1:]
		// lines disabled after assertion stay latched
		if t.irqEnabled&(uint64(1)<<irq) == 0 {
			t.irqLatched |= uint64(1) << irq
			continue
		}
		return IRQSource{Kind: IRQExternal, Line: irq}, true
	}
	return IRQSource{}, false
}

// ConfigRecv configures ep as receive endpoint of owner.
func (t *HostTCU) ConfigRecv(ep EpId, owner uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep >= kernel.TotalEPs {
		return fmt.Errorf("config ep %d: %w", ep, ErrNoEndpoint)
	}
	t.eps[ep] = &recvEP{owner: ActId(owner)}
	return nil
}

// RecvOwner returns the owner of a configured receive endpoint.
func (t *HostTCU) RecvOwner(ep EpId) (ActId, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep >= kernel.TotalEPs || t.eps[ep] == nil {
		return 0, false
	}
	return t.eps[ep].owner, true
}

// Deliver deposits msg into ep. If the owner is not the current activity,
// the TCU raises a foreign-receive core request instead of counting it.
func (t *HostTCU) Deliver(ep EpId, msg kernel.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep >= kernel.TotalEPs || t.eps[ep] == nil {
		return fmt.Errorf("deliver to ep %d: %w", ep, ErrNoEndpoint)
	}
	rep := t.eps[ep]
	msg.To = ep
	if !rep.q.TrySend(msg) {
		return fmt.Errorf("deliver to ep %d: %w", ep, ErrRecvFull)
	}
	if ActRegId(t.cur) == rep.owner {
		t.cur += 1 << ActMsgsShift
		return nil
	}
	t.coreReqs = append(t.coreReqs, EncodeForeignReceive(rep.owner, ep))
	return nil
}

func (t *HostTCU) FetchMsg(ep EpId) (*Msg, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep >= kernel.TotalEPs || t.eps[ep] == nil {
		return nil, false
	}
	rep := t.eps[ep]
	if rep.owner != ActRegId(t.cur) {
		return nil, false
	}
	msg, ok := rep.q.TryRecv()
	if !ok {
		return nil, false
	}
	if ActRegMsgs(t.cur) > 0 {
		t.cur -= 1 << ActMsgsShift
	}
	return &msg, true
}

func (t *HostTCU) AckMsg(ep EpId, msg *Msg) {}

func (t *HostTCU) Reply(ep EpId, msg *Msg, payload []byte) error {
	out := kernel.NewMessage(msg.ReplyEP, msg.Label, payload)
	out.Tile = t.tile
	out.From = ep
	if !t.out.TrySend(out) {
		return fmt.Errorf("reply on ep %d: %w", ep, ErrKernelFull)
	}
	return nil
}

func (t *HostTCU) Send(ep EpId, payload []byte, replyEP EpId) error {
	t.mu.Lock()
	label := t.nextLabel
	t.nextLabel++
	t.mu.Unlock()

	out := kernel.NewMessage(ep, label, payload)
	out.Tile = t.tile
	out.From = ep
	out.ReplyEP = replyEP
	if !t.out.TrySend(out) {
		return fmt.Errorf("send on ep %d: %w", ep, ErrKernelFull)
	}
	return nil
}

func (t *HostTCU) HasMsgs(ep EpId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep >= kernel.TotalEPs || t.eps[ep] == nil {
		return false
	}
	return t.eps[ep].q.Len() > 0
}
