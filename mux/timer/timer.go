// Package timer multiplexes the tile's one-shot timer among sleeping activities.
package timer

import (
	"fmt"
	"sort"

	"tilemux/hal"
)

// Hardware is the part of the TCU the timer drives.
type Hardware interface {
	hal.Clock
	SetTimer(delayNs uint64) error
}

type entry struct {
	act      hal.ActId
	deadline uint64
}

// Timer keeps pending deadlines sorted so that the nearest one sits at the
// end of the slice. The hardware register always holds the nearest deadline
// relative to now, or is disarmed when nothing is pending. The time slice
// of the running activity counts as one more deadline while it is set.
type Timer struct {
	hw       Hardware
	entries  []entry
	deadline uint64
	budget   uint64
	armed    bool
	budgetOn bool
}

func New(hw Hardware) *Timer {
	return &Timer{hw: hw}
}

// Add schedules a wakeup for act in delayNs. An existing entry for act is replaced.
func (t *Timer) Add(act hal.ActId, delayNs uint64) {
	t.drop(act)
	deadline := t.hw.Nanotime() + delayNs
	// equal deadlines stay in insertion order: older entries are nearer the end
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].deadline <= deadline
	})
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry{act: act, deadline: deadline}
	t.program()
}

// Remove drops all entries of act. Removing an unknown activity is a no-op.
func (t *Timer) Remove(act hal.ActId) {
	if t.drop(act) {
		t.program()
	}
}

// Trigger wakes every activity whose deadline has passed, nearest first.
func (t *Timer) Trigger(wake func(hal.ActId)) {
	now := t.hw.Nanotime()
	for n := len(t.entries); n > 0; n = len(t.entries) {
		e := t.entries[n-1]
		if e.deadline > now {
			break
		}
		t.entries = t.entries[:n-1]
		wake(e.act)
	}
	if _, ok := t.next(); !ok {
		t.set(0)
		t.armed = false
		return
	}
	// rearm relative to now even if the nearest entry did not change
	t.armed = false
	t.program()
}

// Reprogram sets the end of the running activity's time slice and arms the
// hardware for whichever comes first, that or the nearest sleeper. With ok
// false only sleepers are considered.
func (t *Timer) Reprogram(budgetDeadline uint64, ok bool) {
	t.budget, t.budgetOn = budgetDeadline, ok
	t.program()
}

// Budget returns the slice deadline set by Reprogram.
func (t *Timer) Budget() (uint64, bool) {
	return t.budget, t.budgetOn
}

// Nearest returns the entry that fires next.
func (t *Timer) Nearest() (act hal.ActId, deadline uint64, ok bool) {
	if len(t.entries) == 0 {
		return 0, 0, false
	}
	e := t.entries[len(t.entries)-1]
	return e.act, e.deadline, true
}

// Deadline returns the pending deadline of act.
func (t *Timer) Deadline(act hal.ActId) (uint64, bool) {
	for _, e := range t.entries {
		if e.act == act {
			return e.deadline, true
		}
	}
	return 0, false
}

func (t *Timer) Len() int { return len(t.entries) }

func (t *Timer) drop(act hal.ActId) bool {
	out := t.entries[:0]
	for _, e := range t.entries {
		if e.act != act {
			out = append(out, e)
		}
	}
	removed := len(out) != len(t.entries)
	t.entries = out
	return removed
}

func (t *Timer) next() (uint64, bool) {
	if len(t.entries) == 0 {
		return t.budget, t.budgetOn
	}
	deadline := t.entries[len(t.entries)-1].deadline
	if t.budgetOn && t.budget < deadline {
		deadline = t.budget
	}
	return deadline, true
}

func (t *Timer) program() {
	deadline, ok := t.next()
	if !ok {
		if t.armed {
			t.set(0)
			t.armed = false
		}
		return
	}
	if t.armed && deadline == t.deadline {
		return
	}
	now := t.hw.Nanotime()
	delay := uint64(1)
	if deadline > now {
		delay = deadline - now
	}
	t.set(delay)
	t.armed = true
	t.deadline = deadline
}

func (t *Timer) set(delay uint64) {
	if err := t.hw.SetTimer(delay); err != nil {
		panic(fmt.Sprintf("timer: programming %dns failed: %v", delay, err))
	}
}
