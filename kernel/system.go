package kernel

import "fmt"

// Port is the kernel's view of a tile's TCU: it can configure receive
// endpoints and deposit messages into them.
type Port interface {
	ConfigRecv(ep EpId, owner uint16) error
	Deliver(ep EpId, msg Message) error
}

// Remote is the kernel side of the link to one tile multiplexer. It sends
// upcalls, collects their replies and acknowledges the mux's notifications.
//
// The tile writes into Inbox; Remote is the only consumer.
type Remote struct {
	port  Port
	inbox *Mailbox
	tile  uint16

	nextLabel uint64
	replies   map[uint64]Message
	notices   []Message
}

// NewRemote creates the kernel endpoint of a tile link.
func NewRemote(tile uint16, port Port, inbox *Mailbox) *Remote {
	return &Remote{
		port:      port,
		inbox:     inbox,
		tile:      tile,
		nextLabel: 1,
		replies:   make(map[uint64]Message),
	}
}

// Upcall sends payload to the mux's upcall endpoint and returns the label
// under which the reply will appear.
func (r *Remote) Upcall(payload []byte) (uint64, error) {
	label := r.nextLabel
	r.nextLabel++

	msg := NewMessage(EPUpcallRecv, label, payload)
	msg.Tile = r.tile
	msg.ReplyEP = EPUpcallReply
	if err := r.port.Deliver(EPUpcallRecv, msg); err != nil {
		return 0, fmt.Errorf("upcall to tile %d: %w", r.tile, err)
	}
	return label, nil
}

// Collect drains the inbox. Replies are kept until taken; notifications are
// queued and answered with an empty reply, as the mux expects.
func (r *Remote) Collect() error {
	for {
		msg, ok := r.inbox.TryRecv()
		if !ok {
			return nil
		}
		switch msg.To {
		case EPUpcallReply:
			r.replies[msg.Label] = msg
		case EPKernelSend:
			r.notices = append(r.notices, msg)
			if msg.ReplyEP == InvalidEP {
				continue
			}
			ack := NewMessage(msg.ReplyEP, msg.Label, nil)
			ack.Tile = r.tile
			if err := r.port.Deliver(msg.ReplyEP, ack); err != nil {
				return fmt.Errorf("ack notification of tile %d: %w", r.tile, err)
			}
		default:
			return fmt.Errorf("tile %d: message for unexpected endpoint %d", r.tile, msg.To)
		}
	}
}

// TakeReply returns and forgets the reply with the given label.
func (r *Remote) TakeReply(label uint64) (Message, bool) {
	msg, ok := r.replies[label]
	if ok {
		delete(r.replies, label)
	}
	return msg, ok
}

// TakeNotices returns and forgets all collected notifications.
func (r *Remote) TakeNotices() []Message {
	n := r.notices
	r.notices = nil
	return n
}
