package mux

import (
	"bytes"
	"strings"
	"testing"

	"tilemux/hal"
	"tilemux/kernel"
)

func TestParseLogFlags(t *testing.T) {
	tests := []struct {
		in   string
		want LogFlags
	}{
		{"", 0},
		{"none", 0},
		{"all", LogAll},
		{"err", LogErr},
		{"ctxsws, Timer", LogCtxSws | LogTimer},
	}
	for _, tc := range tests {
		got, err := ParseLogFlags(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseLogFlags(%q) = %s, %v, want %s", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseLogFlags("err,bogus"); err == nil {
		t.Fatal("ParseLogFlags accepted an unknown topic")
	}
	if s := (LogErr | LogIRQs).String(); s != "err,irqs" {
		t.Fatalf("String() = %q", s)
	}
}

func TestLogfFilters(t *testing.T) {
	var buf bytes.Buffer
	h := hal.New(hal.HostConfig{Tile: 2, Log: &buf, KernelInbox: &kernel.Mailbox{}})
	m := New(h, nil, Config{LogFlags: LogActs})
	m.logf(LogActs, "shown %d", 1)
	m.logf(LogTimer, "hidden")
	if got := buf.String(); got != "[T2] shown 1\n" {
		t.Fatalf("log = %q", got)
	}
}

func TestHaltOnce(t *testing.T) {
	var calls []PanicInfo
	SetPanicHandler(func(info PanicInfo) { calls = append(calls, info) })
	defer SetPanicHandler(nil)

	tt := newTestTile(t, Config{})
	tt.spawn(6)
	tt.mux.Halt("first")
	tt.mux.Halt("second")
	if len(calls) != 1 || calls[0].Value != "first" || calls[0].Act != 6 {
		t.Fatalf("handler calls = %+v", calls)
	}
	if !tt.mux.Halted() {
		t.Fatal("Halted() = false")
	}
	if s := tt.mux.ExtIRQ(hal.IRQSource{Kind: hal.IRQTimer}); s != nil {
		t.Fatal("halted mux handled an interrupt")
	}
	if !strings.Contains(string(calls[0].Stack), "goroutine") {
		t.Fatal("stack not captured")
	}
}
