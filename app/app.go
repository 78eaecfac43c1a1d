package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tilemux/hal"
	"tilemux/internal/buildinfo"
	"tilemux/kernel"
	"tilemux/mux"
	"tilemux/mux/proto"
	"tilemux/tmif"
)

// ErrHalted is returned by every operation on a tile after a fatal error.
var ErrHalted = errors.New("tile halted")

// maxPumpRounds bounds Pump so that an interrupt storm is reported instead of hanging.
const maxPumpRounds = 10000

// Config describes one simulated tile.
type Config struct {
	TileID   uint16
	LogFlags mux.LogFlags
	// Realtime drives the tile from the host's monotonic clock instead of a
	// simulated one.
	Realtime  bool
	VirtMem   bool
	TimeSlice uint64
	// Log defaults to stdout.
	Log io.Writer
}

// Tile is a simulated tile: host HAL, multiplexer and the kernel end of
// its message link. Its methods must not be called concurrently.
type Tile struct {
	cfg    Config
	host   *hal.Host
	tcu    *hal.HostTCU
	sim    *hal.SimClock
	env    *kernel.Env
	remote *kernel.Remote
	mux    *mux.Mux
	calls  *tmif.Caller
}

// NewTile assembles a tile with only the idle activity.
func NewTile(cfg Config) (*Tile, error) {
	t := &Tile{cfg: cfg, env: &kernel.Env{}}

	var clock hal.Clock
	if cfg.Realtime {
		clock = hal.NewMonotonicClock()
	} else {
		t.sim = hal.NewSimClock(0)
		clock = t.sim
	}

	inbox := &kernel.Mailbox{}
	t.host = hal.New(hal.HostConfig{Tile: cfg.TileID, Clock: clock, Log: cfg.Log, KernelInbox: inbox})
	t.tcu = t.host.HostTCU()
	for _, ep := range []kernel.EpId{kernel.EPUpcallRecv, kernel.EPKernelReply} {
		if err := t.tcu.ConfigRecv(ep, uint16(mux.OwnID)); err != nil {
			return nil, fmt.Errorf("tile %d: %w", cfg.TileID, err)
		}
	}
	t.remote = kernel.NewRemote(cfg.TileID, t.tcu, inbox)
	t.env.SetTile(cfg.TileID)

	t.mux = mux.New(t.host, t.env, mux.Config{
		LogFlags:  cfg.LogFlags,
		VirtMem:   cfg.VirtMem,
		TimeSlice: cfg.TimeSlice,
	})
	t.calls = tmif.New(t)
	registerPanicLog(cfg.TileID, t.host.Logger())
	if cfg.LogFlags&mux.LogActs != 0 {
		t.Logger().WriteLineString("tilemux " + buildinfo.Short() + " up")
	}
	installPanicHandler()
	return t, nil
}

func (t *Tile) ID() uint16             { return t.cfg.TileID }
func (t *Tile) Mux() *mux.Mux          { return t.mux }
func (t *Tile) Host() *hal.Host        { return t.host }
func (t *Tile) Env() *kernel.Env       { return t.env }
func (t *Tile) Calls() *tmif.Caller    { return t.calls }
func (t *Tile) Halted() bool           { return t.mux.Halted() }
func (t *Tile) Logger() hal.Logger     { return t.host.Logger() }
func (t *Tile) Remote() *kernel.Remote { return t.remote }
func (t *Tile) Clock() hal.Clock       { return t.host.Clock() }
func (t *Tile) Simulated() bool        { return t.sim != nil }

// enter runs one trap handler. A panic inside the mux halts the tile.
func (t *Tile) enter(trap func() *mux.State) (s *mux.State) {
	defer func() {
		if r := recover(); r != nil {
			t.mux.Halt(r)
			s = nil
		}
	}()
	return trap()
}

// TMCall traps into the mux from the running activity and then lets all
// interrupts raised by the call settle.
func (t *Tile) TMCall(s *mux.State) *mux.State {
	if t.Halted() {
		s.R[mux.ArgOp] = proto.CodeAborted.Negated()
		return nil
	}
	op := proto.Operation(s.R[mux.ArgOp])
	res := t.enter(func() *mux.State { return t.mux.TMCall(s) })
	if err := t.Pump(); err != nil {
		t.Logger().WriteLineString(fmt.Sprintf("pump after %s: %v", op, err))
	}
	return res
}

// Pump lets the core take every pending interrupt and the kernel answer
// the mux's notifications, until both sides are quiet.
func (t *Tile) Pump() error {
	for i := 0; i < maxPumpRounds; i++ {
		if t.Halted() {
			return ErrHalted
		}
		if src, ok := t.tcu.NextIRQ(); ok {
			t.enter(func() *mux.State { return t.mux.ExtIRQ(src) })
			continue
		}
		if err := t.remote.Collect(); err != nil {
			return err
		}
		// acknowledgements may raise new core requests
		if _, more := t.tcu.CoreReq(); !more {
			return nil
		}
	}
	return fmt.Errorf("tile %d: interrupts did not settle", t.cfg.TileID)
}

// Upcall sends req to the mux and waits for its reply.
func (t *Tile) Upcall(req proto.Request) (proto.Response, error) {
	if t.Halted() {
		return proto.Response{}, ErrHalted
	}
	label, err := t.remote.Upcall(req.Payload())
	if err != nil {
		return proto.Response{}, err
	}
	if err := t.Pump(); err != nil {
		return proto.Response{}, err
	}
	msg, ok := t.remote.TakeReply(label)
	if !ok {
		return proto.Response{}, fmt.Errorf("%s: no reply", req.Op())
	}
	res, ok := proto.DecodeResponse(msg.Payload())
	if !ok {
		return proto.Response{}, fmt.Errorf("%s: malformed reply", req.Op())
	}
	return res, nil
}

// Spawn creates and starts a user activity.
func (t *Tile) Spawn(id hal.ActId) error {
	for _, op := range []proto.ActOp{proto.ActInit, proto.ActStart} {
		res, err := t.Upcall(proto.ActCtrl{Act: uint16(id), ActOp: op, EpsStart: kernel.FirstUserEP})
		if err != nil {
			return err
		}
		if res.Error != proto.CodeNone {
			return fmt.Errorf("%s activity %d: %w", op, id, res.Error)
		}
	}
	return nil
}

// Deliver sends a message to ep of act, configuring ep as its receive
// endpoint first. An endpoint that still holds unread messages of another
// activity is not handed over.
func (t *Tile) Deliver(act hal.ActId, ep kernel.EpId, payload []byte) error {
	if ep < kernel.FirstUserEP {
		return fmt.Errorf("ep %d is reserved", ep)
	}
	if owner, ok := t.tcu.RecvOwner(ep); !ok || owner != act {
		if ok && t.tcu.HasMsgs(ep) {
			return fmt.Errorf("ep %d still holds messages of activity %d", ep, owner)
		}
		if err := t.tcu.ConfigRecv(ep, uint16(act)); err != nil {
			return err
		}
	}
	if err := t.tcu.Deliver(ep, kernel.NewMessage(ep, 0, payload)); err != nil {
		return err
	}
	return t.Pump()
}

// AssertIRQ raises an external interrupt line.
func (t *Tile) AssertIRQ(irq hal.IRQId) error {
	t.tcu.AssertIRQ(irq)
	return t.Pump()
}

// Advance moves time forward by ns and takes the timer interrupt if it is
// due. Realtime tiles sleep instead.
func (t *Tile) Advance(ctx context.Context, ns uint64) error {
	if t.sim != nil {
		t.sim.Advance(ns)
		return t.Pump()
	}
	timer := time.NewTimer(time.Duration(ns))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return t.Pump()
}

// StartCmd starts a TCU command on behalf of the running activity.
func (t *Tile) StartCmd(op hal.CmdOpCode, ep kernel.EpId, arg1 uint64) error {
	return t.tcu.StartCmd(hal.CmdRegs{Command: hal.BuildCmd(ep, op, 0), Arg1: arg1})
}

// InjectPMPFailure raises a PMP-failure core request.
func (t *Tile) InjectPMPFailure(phys uint32, write bool, errCode uint32) error {
	t.tcu.InjectCoreReq(hal.EncodePMPFailure(phys, write, errCode))
	return t.Pump()
}

// Exits returns the exit notifications the kernel received since the last call.
func (t *Tile) Exits() []proto.ExitNotice {
	var out []proto.ExitNotice
	for _, msg := range t.remote.TakeNotices() {
		if n, ok := proto.DecodeExitNotice(msg.Payload()); ok {
			out = append(out, n)
		}
	}
	return out
}

// Status describes the scheduling state of the tile.
func (t *Tile) Status() string {
	var b strings.Builder
	m := t.mux
	fmt.Fprintf(&b, "tile %d at %dns", t.cfg.TileID, t.Clock().Nanotime())
	if t.Halted() {
		b.WriteString(" (halted)")
	}
	fmt.Fprintf(&b, "\n  current: %s\n  ready: %v\n", m.Current(), m.ReadyIDs())
	for _, a := range m.Activities() {
		fmt.Fprintf(&b, "  %s\n", a)
	}
	if id, deadline, ok := m.Timer().Nearest(); ok {
		fmt.Fprintf(&b, "  timer: activity %d at %dns\n", id, deadline)
	}
	ready, _ := t.env.OthersReady()
	fmt.Fprintf(&b, "  others ready: %t\n  cmd: %s", ready, t.tcu.Cmd())
	return b.String()
}
