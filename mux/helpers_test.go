package mux

import (
	"io"
	"testing"

	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/proto"
)

type testTile struct {
	t      *testing.T
	host   *hal.Host
	tcu    *hal.HostTCU
	clock  *hal.SimClock
	remote *kernel.Remote
	mux    *Mux
}

func newTestTile(t *testing.T, cfg Config) *testTile {
	t.Helper()
	clock := hal.NewSimClock(1000)
	inbox := &kernel.Mailbox{}
	host := hal.New(hal.HostConfig{Clock: clock, Log: io.Discard, KernelInbox: inbox})
	tcu := host.HostTCU()
	for _, ep := range []kernel.EpId{kernel.EPUpcallRecv, kernel.EPKernelReply} {
		if err := tcu.ConfigRecv(ep, uint16(OwnID)); err != nil {
			t.Fatalf("ConfigRecv(%d): %v", ep, err)
		}
	}
	return &testTile{
		t:      t,
		host:   host,
		tcu:    tcu,
		clock:  clock,
		remote: kernel.NewRemote(0, tcu, inbox),
		mux:    New(host, nil, cfg),
	}
}

// pump lets the core take every pending interrupt.
func (tt *testTile) pump() {
	tt.t.Helper()
	for i := 0; i < 1000; i++ {
		src, ok := tt.tcu.NextIRQ()
		if !ok {
			if err := tt.remote.Collect(); err != nil {
				tt.t.Fatalf("Collect: %v", err)
			}
			// acknowledgements may have raised new requests
			if _, more := tt.tcu.CoreReq(); !more {
				return
			}
			continue
		}
		tt.mux.ExtIRQ(src)
	}
	tt.t.Fatal("interrupts did not settle")
}

func (tt *testTile) upcall(req proto.Request) proto.Response {
	tt.t.Helper()
	label, err := tt.remote.Upcall(req.Payload())
	if err != nil {
		tt.t.Fatalf("Upcall(%s): %v", req.Op(), err)
	}
	tt.pump()
	msg, ok := tt.remote.TakeReply(label)
	if !ok {
		tt.t.Fatalf("no reply to %s", req.Op())
	}
	res, ok := proto.DecodeResponse(msg.Payload())
	if !ok {
		tt.t.Fatalf("malformed reply to %s", req.Op())
	}
	return res
}

func (tt *testTile) mustUpcall(req proto.Request) uint64 {
	tt.t.Helper()
	res := tt.upcall(req)
	if res.Error != proto.CodeNone {
		tt.t.Fatalf("%s failed: %s", req.Op(), res.Error)
	}
	return res.Val
}

// spawn creates and starts an activity.
func (tt *testTile) spawn(id hal.ActId) {
	tt.t.Helper()
	tt.mustUpcall(proto.ActCtrl{Act: uint16(id), ActOp: proto.ActInit, EpsStart: kernel.FirstUserEP})
	tt.mustUpcall(proto.ActCtrl{Act: uint16(id), ActOp: proto.ActStart})
}

// call issues a pexcall from the current activity and returns its raw result.
func (tt *testTile) call(op proto.Operation, args ...uint64) uint64 {
	tt.t.Helper()
	var s State
	s.R[ArgOp] = uint64(op)
	for i, a := range args {
		s.R[ArgA+i] = a
	}
	tt.mux.TMCall(&s)
	tt.pump()
	return s.R[ArgOp]
}

func (tt *testTile) wantCur(id hal.ActId) {
	tt.t.Helper()
	if got := tt.mux.Current().ID(); got != id {
		tt.t.Fatalf("current = %d, want %d", got, id)
	}
	if got := hal.ActRegId(tt.tcu.CurActivity()); got != id {
		tt.t.Fatalf("live activity register = %d, want %d", got, id)
	}
}

func (tt *testTile) wantState(id hal.ActId, want ActState) {
	tt.t.Helper()
	a, ok := tt.mux.Activity(id)
	if !ok {
		tt.t.Fatalf("activity %d does not exist", id)
	}
	if a.State() != want {
		tt.t.Fatalf("activity %d state = %s, want %s", id, a.State(), want)
	}
}
