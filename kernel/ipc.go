package kernel

import (
	"runtime"
	"sync/atomic"
)

// MaxMessageBytes is the maximum payload size of a TCU message.
const MaxMessageBytes = 64

// Message is a fixed-size message envelope as stored in a receive buffer.
type Message struct {
	Tile    uint16
	From    EpId
	To      EpId
	ReplyEP EpId
	Label   uint64
	Len     uint16
	Data    [MaxMessageBytes]byte
}

// NewMessage copies payload into a message, truncating at MaxMessageBytes.
func NewMessage(to EpId, label uint64, payload []byte) Message {
	var msg Message
	msg.To = to
	msg.ReplyEP = InvalidEP
	msg.Label = label
	if len(payload) > MaxMessageBytes {
		payload = payload[:MaxMessageBytes]
	}
	msg.Len = uint16(len(payload))
	copy(msg.Data[:], payload)
	return msg
}

// Payload returns the valid part of Data.
func (m *Message) Payload() []byte {
	n := int(m.Len)
	if n > MaxMessageBytes {
		n = MaxMessageBytes
	}
	return m.Data[:n]
}

const mailboxSlots = 16

// Mailbox is a fixed-size multi-producer, single-consumer queue.
// It is designed for bare-metal use: no allocations, busy-wait with Gosched().
type Mailbox struct {
	_      [0]func() // prevent accidental copying.
	head   atomic.Uint32
	commit atomic.Uint32
	tail   atomic.Uint32
	slots  [mailboxSlots]Message
}

// TrySend attempts to enqueue a message, returning false if the mailbox is full.
func (mb *Mailbox) TrySend(msg Message) bool {
	head := mb.head.Load()
	tail := mb.tail.Load()
	if head-tail >= mailboxSlots {
		return false
	}

	// Reserve a slot.
	if !mb.head.CompareAndSwap(head, head+1) {
		return false
	}

	mb.slots[head%mailboxSlots] = msg

	// Publish in reservation order so the consumer never sees a slot before it is written.
	for !mb.commit.CompareAndSwap(head, head+1) {
		runtime.Gosched()
	}
	return true
}

// Send enqueues a message, blocking until it succeeds.
func (mb *Mailbox) Send(msg Message) {
	for !mb.TrySend(msg) {
		runtime.Gosched()
	}
}

// TryRecv attempts to dequeue one message, returning false if empty.
func (mb *Mailbox) TryRecv() (Message, bool) {
	tail := mb.tail.Load()
	if tail == mb.commit.Load() {
		return Message{}, false
	}

	msg := mb.slots[tail%mailboxSlots]
	mb.tail.Store(tail + 1)
	return msg, true
}

// Recv blocks until one message is available.
func (mb *Mailbox) Recv() Message {
	for {
		msg, ok := mb.TryRecv()
		if ok {
			return msg
		}
		runtime.Gosched()
	}
}

// Len returns the number of queued messages.
func (mb *Mailbox) Len() int {
	return int(mb.commit.Load() - mb.tail.Load())
}
