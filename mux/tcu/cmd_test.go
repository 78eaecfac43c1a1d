package tcu

import (
	"strings"
	"testing"

	"tilemux/hal"
	"tilemux/kernel"
)

func newTCU() *hal.HostTCU {
	return hal.NewHostTCU(0, hal.NewSimClock(0), &kernel.Mailbox{})
}

func TestGuardRoundTrip(t *testing.T) {
	tcu := newTCU()
	want := hal.CmdRegs{Command: hal.BuildCmd(9, hal.CmdSend, 3), Arg1: 0x77, DataAddr: 0x4000, DataSize: 32}
	if err := tcu.StartCmd(want); err != nil {
		t.Fatalf("StartCmd: %v", err)
	}

	g := NewGuard(tcu)
	if tcu.Cmd().InFlight() {
		t.Fatal("command still in flight inside guard")
	}
	g.Release()

	if got := tcu.Cmd(); got != want {
		t.Fatalf("after release = %s, want %s", got, want)
	}
	if st := tcu.Stats(); st.Retries != 1 || st.Fences != 1 {
		t.Fatalf("retries=%d fences=%d, want 1/1", st.Retries, st.Fences)
	}
	if tcu.UnfencedRetry() {
		t.Fatal("retry without fence")
	}
}

func TestGuardIdleIsNoop(t *testing.T) {
	tcu := newTCU()
	g := NewGuard(tcu)
	g.Release()
	if st := tcu.Stats(); st.Retries != 0 {
		t.Fatalf("retries = %d, want 0", st.Retries)
	}
	if tcu.Cmd().InFlight() {
		t.Fatal("idle guard started a command")
	}
}

func TestGuardReleaseOnce(t *testing.T) {
	tcu := newTCU()
	tcu.StartCmd(hal.CmdRegs{Command: hal.BuildCmd(8, hal.CmdFetchMsg, 0)})
	g := NewGuard(tcu)
	g.Release()
	tcu.CompleteCmd()
	g.Release()
	if st := tcu.Stats(); st.Retries != 1 {
		t.Fatalf("retries = %d, want 1", st.Retries)
	}
}

func TestNestedGuards(t *testing.T) {
	tcu := newTCU()
	want := hal.CmdRegs{Command: hal.BuildCmd(10, hal.CmdRead, 0), Arg1: 1, DataAddr: 2, DataSize: 3}
	tcu.StartCmd(want)

	outer := NewGuard(tcu)
	// the handler issues its own command, then a nested section interrupts it
	inner := hal.CmdRegs{Command: hal.BuildCmd(4, hal.CmdSend, 0), Arg1: 9}
	tcu.StartCmd(inner)
	g := NewGuard(tcu)
	g.Release()
	if got := tcu.Cmd(); got.Command != inner.Command || got.Arg1 != inner.Arg1 {
		t.Fatalf("inner after release = %s, want %s", got, inner)
	}
	tcu.CompleteCmd()
	outer.Release()

	if got := tcu.Cmd(); got != want {
		t.Fatalf("outer after release = %s, want %s", got, want)
	}
}

func TestSaveRestoreArgsWithoutCommand(t *testing.T) {
	tcu := newTCU()
	tcu.WriteCmdArgs(5, 6, 7)
	var st CmdState
	st.Save(tcu)
	if st.Pending() != nil {
		t.Fatal("pending command for idle registers")
	}
	tcu.WriteCmdArgs(0, 0, 0)
	st.Restore(tcu)
	if got := tcu.Cmd(); got.Arg1 != 5 || got.DataAddr != 6 || got.DataSize != 7 {
		t.Fatalf("args after restore = %s", got)
	}
}

func TestFailedRetryPanics(t *testing.T) {
	tcu := newTCU()
	tcu.StartCmd(hal.CmdRegs{Command: hal.BuildCmd(8, hal.CmdSend, 0)})
	var st CmdState
	st.Save(tcu)
	// occupy the registers so the retry cannot start
	tcu.StartCmd(hal.CmdRegs{Command: hal.BuildCmd(9, hal.CmdSend, 0)})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if msg, _ := r.(string); !strings.Contains(msg, "retry") {
			t.Fatalf("panic = %v", r)
		}
	}()
	st.Restore(tcu)
}
