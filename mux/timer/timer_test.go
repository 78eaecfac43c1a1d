package timer

import (
	"math/rand"
	"testing"

	"tilemux/hal"
	"tilemux/kernel"
)

func newTimer(start uint64) (*Timer, *hal.HostTCU, *hal.SimClock) {
	clk := hal.NewSimClock(start)
	tcu := hal.NewHostTCU(0, clk, &kernel.Mailbox{})
	return New(tcu), tcu, clk
}

func TestAddArmsNearest(t *testing.T) {
	tm, tcu, _ := newTimer(1000)
	tm.Add(1, 500)
	if delay, deadline, armed := tcu.Timer(); !armed || delay != 500 || deadline != 1500 {
		t.Fatalf("timer = %d/%d/%v, want 500/1500/true", delay, deadline, armed)
	}
	tm.Add(2, 900)
	if delay, _, _ := tcu.Timer(); delay != 500 {
		t.Fatalf("later deadline reprogrammed timer to %d", delay)
	}
	tm.Add(3, 100)
	if delay, _, _ := tcu.Timer(); delay != 100 {
		t.Fatalf("delay = %d, want 100", delay)
	}
	if act, deadline, _ := tm.Nearest(); act != 3 || deadline != 1100 {
		t.Fatalf("Nearest = %d@%d, want 3@1100", act, deadline)
	}
}

func TestAddReplacesEntry(t *testing.T) {
	tm, _, _ := newTimer(0)
	tm.Add(1, 100)
	tm.Add(1, 300)
	if tm.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tm.Len())
	}
	if d, _ := tm.Deadline(1); d != 300 {
		t.Fatalf("Deadline = %d, want 300", d)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	tm, tcu, _ := newTimer(0)
	tm.Add(4, 100)
	tm.Remove(4)
	tm.Remove(4)
	if tm.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tm.Len())
	}
	if _, _, armed := tcu.Timer(); armed {
		t.Fatal("timer armed with no entries")
	}
}

func TestRemoveNearestRearms(t *testing.T) {
	tm, tcu, _ := newTimer(0)
	tm.Add(1, 100)
	tm.Add(2, 400)
	tm.Remove(1)
	if delay, _, armed := tcu.Timer(); !armed || delay != 400 {
		t.Fatalf("timer = %d/%v, want 400/true", delay, armed)
	}
}

func TestTriggerTiesInInsertionOrder(t *testing.T) {
	tm, _, clk := newTimer(0)
	tm.Add(5, 100)
	tm.Add(6, 100)
	tm.Add(7, 100)
	clk.Advance(100)

	var woken []hal.ActId
	tm.Trigger(func(a hal.ActId) { woken = append(woken, a) })
	want := []hal.ActId{5, 6, 7}
	if len(woken) != len(want) {
		t.Fatalf("woken = %v, want %v", woken, want)
	}
	for i := range want {
		if woken[i] != want[i] {
			t.Fatalf("woken = %v, want %v", woken, want)
		}
	}
}

func TestTriggerProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		start := uint64(rng.Intn(10000))
		tm, tcu, clk := newTimer(start)

		deadlines := make(map[hal.ActId]uint64)
		for i := 0; i < 1+rng.Intn(10); i++ {
			act := hal.ActId(rng.Intn(8))
			delay := uint64(1 + rng.Intn(5000))
			tm.Add(act, delay)
			deadlines[act] = start + delay
		}

		now := clk.Advance(uint64(rng.Intn(6000)))
		woken := make(map[hal.ActId]bool)
		tm.Trigger(func(a hal.ActId) {
			if woken[a] {
				t.Fatalf("round %d: activity %d woken twice", round, a)
			}
			woken[a] = true
		})

		var minLeft uint64
		left := 0
		for act, d := range deadlines {
			due := d <= now
			if due != woken[act] {
				t.Fatalf("round %d: act %d deadline %d now %d woken=%v", round, act, d, now, woken[act])
			}
			if !due {
				if left == 0 || d < minLeft {
					minLeft = d
				}
				left++
			}
		}
		if tm.Len() != left {
			t.Fatalf("round %d: Len = %d, want %d", round, tm.Len(), left)
		}

		delay, _, armed := tcu.Timer()
		if left == 0 {
			if armed {
				t.Fatalf("round %d: timer armed with no entries", round)
			}
			continue
		}
		if !armed || delay != minLeft-now {
			t.Fatalf("round %d: timer = %d/%v, want %d", round, delay, armed, minLeft-now)
		}
	}
}

func TestReprogramTakesNearer(t *testing.T) {
	tm, tcu, clk := newTimer(1000)
	tm.Add(1, 500)
	tm.Reprogram(1200, true)
	if delay, deadline, _ := tcu.Timer(); delay != 200 || deadline != 1200 {
		t.Fatalf("timer = %d/%d, want 200/1200", delay, deadline)
	}
	tm.Reprogram(1800, true)
	if _, deadline, _ := tcu.Timer(); deadline != 1500 {
		t.Fatalf("deadline = %d, want sleeper at 1500", deadline)
	}

	// a slice that already ended fires as soon as possible
	clk.Advance(300)
	tm.Reprogram(1100, true)
	if delay, _, armed := tcu.Timer(); !armed || delay != 1 {
		t.Fatalf("timer = %d/%v, want 1/true", delay, armed)
	}

	tm.Remove(1)
	tm.Reprogram(0, false)
	if _, _, armed := tcu.Timer(); armed {
		t.Fatal("timer armed with neither sleepers nor slice")
	}
}

func TestTriggerKeepsSlice(t *testing.T) {
	tm, tcu, clk := newTimer(0)
	tm.Reprogram(400, true)
	tm.Add(3, 100)
	clk.Advance(100)
	tm.Trigger(func(hal.ActId) {})
	if delay, deadline, armed := tcu.Timer(); !armed || delay != 300 || deadline != 400 {
		t.Fatalf("timer = %d/%d/%v, want 300/400/true", delay, deadline, armed)
	}
	if d, ok := tm.Budget(); !ok || d != 400 {
		t.Fatalf("Budget = %d/%v, want 400/true", d, ok)
	}
}
