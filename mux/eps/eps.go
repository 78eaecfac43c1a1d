// Package eps tracks which local endpoints are reserved for which activity
// and which gate is attached to them.
package eps

import (
	"tilemux/hal"
	"tilemux/kernel"
	"tilemux/mux/proto"
)

// Rights define which operations a gate allows.
type Rights uint8

const (
	RightSend Rights = 1 << iota
	RightRecv
)

func (r Rights) String() string {
	switch r {
	case RightSend:
		return "send"
	case RightRecv:
		return "recv"
	case RightSend | RightRecv:
		return "send|recv"
	default:
		return "none"
	}
}

// Gate is the communication object configured on an endpoint.
type Gate struct {
	Rights Rights
	Label  uint64
}

// Entry is one reserved endpoint.
type Entry struct {
	Act  hal.ActId
	Gate *Gate
}

type slot struct {
	used bool
	Entry
}

// Table reserves endpoints in [first, last).
type Table struct {
	first kernel.EpId
	slots []slot
	used  int
}

// New creates a table for the endpoints first..last-1.
func New(first, last kernel.EpId) *Table {
	if last < first {
		last = first
	}
	return &Table{first: first, slots: make([]slot, last-first)}
}

// Default covers all user endpoints of a tile.
func Default() *Table { return New(kernel.FirstUserEP, kernel.TotalEPs) }

func (t *Table) Len() int { return t.used }
func (t *Table) Cap() int { return len(t.slots) }

func (t *Table) slot(ep kernel.EpId) *slot {
	if ep < t.first || int(ep-t.first) >= len(t.slots) {
		return nil
	}
	return &t.slots[ep-t.first]
}

// Alloc reserves ep for act, or the lowest free endpoint if ep is
// kernel.InvalidEP. A full table yields proto.CodeNoSpace and changes nothing.
func (t *Table) Alloc(act hal.ActId, ep kernel.EpId) (kernel.EpId, error) {
	if ep != kernel.InvalidEP {
		s := t.slot(ep)
		if s == nil {
			return kernel.InvalidEP, proto.CodeInvArgs
		}
		if s.used {
			return kernel.InvalidEP, proto.CodeExists
		}
		t.take(s, act)
		return ep, nil
	}
	for i := range t.slots {
		if !t.slots[i].used {
			t.take(&t.slots[i], act)
			return t.first + kernel.EpId(i), nil
		}
	}
	return kernel.InvalidEP, proto.CodeNoSpace
}

func (t *Table) take(s *slot, act hal.ActId) {
	*s = slot{used: true, Entry: Entry{Act: act}}
	t.used++
}

// Free releases ep and returns what was reserved, including the detached gate.
func (t *Table) Free(ep kernel.EpId) (Entry, error) {
	s := t.slot(ep)
	if s == nil || !s.used {
		return Entry{}, proto.CodeInvArgs
	}
	e := s.Entry
	*s = slot{}
	t.used--
	return e, nil
}

// Lookup returns the reservation of ep.
func (t *Table) Lookup(ep kernel.EpId) (Entry, bool) {
	s := t.slot(ep)
	if s == nil || !s.used {
		return Entry{}, false
	}
	return s.Entry, true
}

// Bind attaches g to a reserved endpoint, replacing any previous gate.
func (t *Table) Bind(ep kernel.EpId, g Gate) error {
	s := t.slot(ep)
	if s == nil || !s.used {
		return proto.CodeInvEP
	}
	s.Gate = &g
	return nil
}

// Owned returns the endpoints reserved for act in ascending order.
func (t *Table) Owned(act hal.ActId) []kernel.EpId {
	var out []kernel.EpId
	for i := range t.slots {
		if t.slots[i].used && t.slots[i].Act == act {
			out = append(out, t.first+kernel.EpId(i))
		}
	}
	return out
}

// FreeAll releases every endpoint of act and returns them.
func (t *Table) FreeAll(act hal.ActId) []kernel.EpId {
	eps := t.Owned(act)
	for _, ep := range eps {
		t.Free(ep)
	}
	return eps
}
