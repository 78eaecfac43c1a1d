package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func runScript(t *testing.T, tile *Tile, script string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewRunner(tile, &out).Run(context.Background(), strings.NewReader(script))
	return out.String(), err
}

func TestScriptSleep(t *testing.T) {
	tile := newTile(t, Config{})
	out, err := runScript(t, tile, `
# activity 1 sleeps 5us
init 1
start 1
expect-cur 1
sleep 5000
expect-state 1 blocked
expect-cur idle
advance 4999
expect-state 1 blocked
advance 1
expect-cur 1
exit 3
expect-exit 1 3
expect-cur idle
`)
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}
	for _, want := range []string{"act_ctrl -> 0x0", "sleep -> ok", "activity 1 exited with code 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output misses %q:\n%s", want, out)
		}
	}
}

func TestScriptEndpoints(t *testing.T) {
	tile := newTile(t, Config{})
	out, err := runScript(t, tile, `
allocep 3
allocep 3 8
freeep 8
freeep 8
`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "alloc_ep -> 0x8\nalloc_ep -> exists\nfree_ep -> 0x0\nfree_ep -> inv_args\n"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestScriptMessageWakes(t *testing.T) {
	tile := newTile(t, Config{})
	_, err := runScript(t, tile, `
init 2
start 2
sleep 0 20
expect-state 2 blocked
msg 2 20
expect-cur 2
`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestScriptInterrupt(t *testing.T) {
	tile := newTile(t, Config{})
	_, err := runScript(t, tile, `
init 1
start 1
regirq 5
wait none 5 none
expect-state 1 blocked
irq 5
expect-cur 1
`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestScriptCommandSurvivesUpcall(t *testing.T) {
	tile := newTile(t, Config{})
	_, err := runScript(t, tile, `
init 1
start 1
cmd send 12 0x42
allocep 1
`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cmd := tile.Host().HostTCU().Cmd(); cmd.Arg1 != 0x42 || !cmd.InFlight() {
		t.Fatalf("command = %s", cmd)
	}
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{"bogus", `line 1: unknown command "bogus"`},
		{"\ninit", "line 2: usage: init ACT"},
		{"init x1", `bad number "x1"`},
		{"expect-cur 5", "current activity = 65534, want 5"},
		{"cmd jump 1", `bad number "jump"`},
		{"cmd 3 1", `unknown TCU command "3"`},
		{"expect-exit 4 0", "has not exited"},
		{`init "1`, "parse"},
	}
	for _, tc := range tests {
		_, err := runScript(t, newTile(t, Config{}), tc.script)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q: err = %v, want %q", tc.script, err, tc.want)
		}
	}
}

func TestScriptStatus(t *testing.T) {
	tile := newTile(t, Config{})
	out, err := runScript(t, tile, "init 1\nstart 1\ninit 2\nstart 2\nstatus\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "ready: [2]") || !strings.Contains(out, "id=1, state=running") {
		t.Fatalf("status:\n%s", out)
	}
}
