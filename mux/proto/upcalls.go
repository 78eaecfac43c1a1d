package proto

import "tilemux/kernel"

// Request is a decoded upcall. The set of implementations is closed; every
// handler switch ends in an Unknown arm.
type Request interface {
	Op() Upcall
	Payload() []byte
	upcall()
}

// ActCtrl creates, starts or stops an activity.
type ActCtrl struct {
	Act      uint16
	ActOp    ActOp
	EpsStart kernel.EpId
}

// Map installs pages in an activity's address space.
type Map struct {
	Act    uint16
	Virt   uint64
	Global uint64
	Pages  uint64
	Perm   uint64
}

// Translate looks up a virtual address of an activity.
type Translate struct {
	Act  uint16
	Virt uint64
	Perm uint64
}

// RemMsgs tells the mux that unread messages of an activity were dropped.
type RemMsgs struct {
	Act        uint16
	UnreadMask uint64
}

// EpInval tells the mux that an endpoint of an activity was invalidated.
type EpInval struct {
	Act uint16
	Ep  kernel.EpId
}

// AllocEP reserves a local endpoint for a (possibly remote) activity.
// Ep = kernel.InvalidEP lets the mux pick one.
type AllocEP struct {
	Act uint16
	Ep  kernel.EpId
}

// FreeEP releases a previously reserved endpoint.
type FreeEP struct {
	Ep kernel.EpId
}

// ResetStats resets the accounting counters of all activities.
type ResetStats struct{}

// Unknown carries an opcode the mux does not implement.
type Unknown struct {
	Opcode uint64
}

func (ActCtrl) Op() Upcall    { return UpcallActCtrl }
func (Map) Op() Upcall        { return UpcallMap }
func (Translate) Op() Upcall  { return UpcallTranslate }
func (RemMsgs) Op() Upcall    { return UpcallRemMsgs }
func (EpInval) Op() Upcall    { return UpcallEpInval }
func (AllocEP) Op() Upcall    { return UpcallAllocEP }
func (FreeEP) Op() Upcall     { return UpcallFreeEP }
func (ResetStats) Op() Upcall { return UpcallResetStats }
func (u Unknown) Op() Upcall  { return Upcall(u.Opcode) }

func (ActCtrl) upcall()    {}
func (Map) upcall()        {}
func (Translate) upcall()  {}
func (RemMsgs) upcall()    {}
func (EpInval) upcall()    {}
func (AllocEP) upcall()    {}
func (FreeEP) upcall()     {}
func (ResetStats) upcall() {}
func (Unknown) upcall()    {}

func (r ActCtrl) Payload() []byte {
	return putWords(uint64(UpcallActCtrl), uint64(r.Act), uint64(r.ActOp), uint64(r.EpsStart))
}

func (r Map) Payload() []byte {
	return putWords(uint64(UpcallMap), uint64(r.Act), r.Virt, r.Global, r.Pages, r.Perm)
}

func (r Translate) Payload() []byte {
	return putWords(uint64(UpcallTranslate), uint64(r.Act), r.Virt, r.Perm)
}

func (r RemMsgs) Payload() []byte {
	return putWords(uint64(UpcallRemMsgs), uint64(r.Act), r.UnreadMask)
}

func (r EpInval) Payload() []byte {
	return putWords(uint64(UpcallEpInval), uint64(r.Act), uint64(r.Ep))
}

func (r AllocEP) Payload() []byte {
	return putWords(uint64(UpcallAllocEP), uint64(r.Act), uint64(r.Ep))
}

func (r FreeEP) Payload() []byte {
	return putWords(uint64(UpcallFreeEP), uint64(r.Ep))
}

func (ResetStats) Payload() []byte {
	return putWords(uint64(UpcallResetStats))
}

func (u Unknown) Payload() []byte {
	return putWords(u.Opcode)
}

// DecodeUpcall decodes an upcall message. A payload too short for its
// opcode yields CodeInvArgs.
func DecodeUpcall(payload []byte) (Request, error) {
	hdr, ok := getWords(payload, 1)
	if !ok {
		return nil, CodeInvArgs
	}

	op := Upcall(hdr[0])
	var n int
	switch op {
	case UpcallActCtrl:
		n = 4
	case UpcallMap:
		n = 6
	case UpcallTranslate:
		n = 4
	case UpcallRemMsgs, UpcallEpInval, UpcallAllocEP:
		n = 3
	case UpcallFreeEP:
		n = 2
	case UpcallResetStats:
		return ResetStats{}, nil
	default:
		return Unknown{Opcode: hdr[0]}, nil
	}

	ws, ok := getWords(payload, n)
	if !ok {
		return nil, CodeInvArgs
	}

	switch op {
	case UpcallActCtrl:
		return ActCtrl{Act: uint16(ws[1]), ActOp: ActOp(ws[2]), EpsStart: EpArg(ws[3])}, nil
	case UpcallMap:
		return Map{Act: uint16(ws[1]), Virt: ws[2], Global: ws[3], Pages: ws[4], Perm: ws[5]}, nil
	case UpcallTranslate:
		return Translate{Act: uint16(ws[1]), Virt: ws[2], Perm: ws[3]}, nil
	case UpcallRemMsgs:
		return RemMsgs{Act: uint16(ws[1]), UnreadMask: ws[2]}, nil
	case UpcallEpInval:
		return EpInval{Act: uint16(ws[1]), Ep: EpArg(ws[2])}, nil
	case UpcallAllocEP:
		return AllocEP{Act: uint16(ws[1]), Ep: EpArg(ws[2])}, nil
	default:
		return FreeEP{Ep: EpArg(ws[1])}, nil
	}
}
