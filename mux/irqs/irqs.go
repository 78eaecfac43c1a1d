// Package irqs routes external interrupt lines to the activities that own them.
package irqs

import (
	"fmt"
	"math/bits"

	"tilemux/hal"
)

// MaxIRQs is the number of external lines of the tile's interrupt controller.
const MaxIRQs = 64

// Any makes Wait accept an assertion on any owned line.
const Any = ^hal.IRQId(0)

// Controller is the interrupt controller's enable interface.
type Controller interface {
	EnableIRQ(irq hal.IRQId)
	DisableIRQ(irq hal.IRQId)
}

type line struct {
	owner   hal.ActId
	bound   bool
	pending uint32
}

// Registry maps lines to their owner and counts assertions nobody waited for.
//
// A line is enabled at the controller only while its owner is blocked
// waiting for interrupts; every assertion disables it again.
type Registry struct {
	hw      Controller
	lines   [MaxIRQs]line
	enabled uint64
}

func New(hw Controller) *Registry {
	return &Registry{hw: hw}
}

// Owner returns the activity irq is bound to.
func (r *Registry) Owner(irq hal.IRQId) (hal.ActId, bool) {
	if irq >= MaxIRQs || !r.lines[irq].bound {
		return 0, false
	}
	return r.lines[irq].owner, true
}

// Pending returns the number of undelivered assertions of irq.
func (r *Registry) Pending(irq hal.IRQId) uint32 {
	if irq >= MaxIRQs {
		return 0
	}
	return r.lines[irq].pending
}

// Enabled returns the lines currently enabled at the controller.
func (r *Registry) Enabled() uint64 { return r.enabled }

// Mask returns the lines owned by act.
func (r *Registry) Mask(act hal.ActId) uint64 {
	var m uint64
	for i := range r.lines {
		if r.lines[i].bound && r.lines[i].owner == act {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Register binds irq to act. Binding a line twice is a consistency violation.
func (r *Registry) Register(act hal.ActId, irq hal.IRQId) {
	if irq >= MaxIRQs {
		panic(fmt.Sprintf("irqs: line %d out of range", irq))
	}
	l := &r.lines[irq]
	if l.bound {
		panic(fmt.Sprintf("irqs: line %d already owned by activity %d", irq, l.owner))
	}
	*l = line{owner: act, bound: true}
}

// Wait consumes one pending assertion of irq (or of any owned line for Any)
// and returns true. Otherwise it enables all lines of act and returns false:
// the caller has to block.
func (r *Registry) Wait(act hal.ActId, irq hal.IRQId) bool {
	if irq == Any {
		for i := range r.lines {
			l := &r.lines[i]
			if l.bound && l.owner == act && l.pending > 0 {
				l.pending--
				return true
			}
		}
	} else if irq < MaxIRQs {
		l := &r.lines[irq]
		if l.bound && l.owner == act && l.pending > 0 {
			l.pending--
			return true
		}
	}

	r.enable(r.Mask(act))
	return false
}

// Signal handles an assertion of irq. deliver is called with the owner and
// reports whether the owner was blocked on exactly this event and has been
// woken; if not, the assertion is counted.
func (r *Registry) Signal(irq hal.IRQId, deliver func(owner hal.ActId) bool) {
	if irq >= MaxIRQs {
		return
	}
	r.disable(1 << uint(irq))
	l := &r.lines[irq]
	if !l.bound {
		return
	}
	if deliver(l.owner) {
		r.disable(r.Mask(l.owner))
		return
	}
	l.pending++
}

// Unwait disables the lines of act after it was woken by something else.
func (r *Registry) Unwait(act hal.ActId) {
	r.disable(r.Mask(act))
}

// Remove unbinds and disables every line of act. Unknown activities are ignored.
func (r *Registry) Remove(act hal.ActId) {
	m := r.Mask(act)
	r.disable(m)
	for m != 0 {
		i := bits.TrailingZeros64(m)
		r.lines[i] = line{}
		m &^= 1 << uint(i)
	}
}

func (r *Registry) enable(m uint64) {
	for todo := m &^ r.enabled; todo != 0; todo &= todo - 1 {
		r.hw.EnableIRQ(hal.IRQId(bits.TrailingZeros64(todo)))
	}
	r.enabled |= m
}

func (r *Registry) disable(m uint64) {
	for todo := m & r.enabled; todo != 0; todo &= todo - 1 {
		r.hw.DisableIRQ(hal.IRQId(bits.TrailingZeros64(todo)))
	}
	r.enabled &^= m
}
