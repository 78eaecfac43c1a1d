package kernel

import (
	"errors"
	"testing"
)

type fakePort struct {
	delivered []Message
	fail      bool
}

func (p *fakePort) ConfigRecv(ep EpId, owner uint16) error { return nil }

func (p *fakePort) Deliver(ep EpId, msg Message) error {
	if p.fail {
		return errors.New("full")
	}
	p.delivered = append(p.delivered, msg)
	return nil
}

func TestRemoteUpcallLabels(t *testing.T) {
	var inbox Mailbox
	port := &fakePort{}
	r := NewRemote(2, port, &inbox)

	l1, err := r.Upcall([]byte{1})
	if err != nil {
		t.Fatalf("Upcall: %v", err)
	}
	l2, _ := r.Upcall([]byte{2})
	if l1 == l2 {
		t.Fatalf("labels not unique: %d", l1)
	}
	if len(port.delivered) != 2 {
		t.Fatalf("delivered %d, want 2", len(port.delivered))
	}
	msg := port.delivered[0]
	if msg.To != EPUpcallRecv || msg.ReplyEP != EPUpcallReply || msg.Tile != 2 {
		t.Fatalf("upcall message = %+v", msg)
	}
}

func TestRemoteUpcallDeliverError(t *testing.T) {
	var inbox Mailbox
	r := NewRemote(0, &fakePort{fail: true}, &inbox)
	if _, err := r.Upcall(nil); err == nil {
		t.Fatal("Upcall err = nil, want error")
	}
}

func TestRemoteCollect(t *testing.T) {
	var inbox Mailbox
	port := &fakePort{}
	r := NewRemote(0, port, &inbox)

	reply := NewMessage(EPUpcallReply, 5, []byte("ok"))
	inbox.Send(reply)
	notice := NewMessage(EPKernelSend, 9, []byte("exit"))
	notice.ReplyEP = EPKernelReply
	inbox.Send(notice)

	if err := r.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got, ok := r.TakeReply(5)
	if !ok || string(got.Payload()) != "ok" {
		t.Fatalf("TakeReply(5) = %q, %t", got.Payload(), ok)
	}
	if _, ok := r.TakeReply(5); ok {
		t.Fatal("TakeReply(5) twice ok = true")
	}
	if n := r.TakeNotices(); len(n) != 1 {
		t.Fatalf("TakeNotices() len = %d, want 1", len(n))
	}
	if len(port.delivered) != 1 || port.delivered[0].To != EPKernelReply {
		t.Fatalf("ack not delivered: %+v", port.delivered)
	}
}

func TestEnvOthersReady(t *testing.T) {
	var env Env
	env.SetTile(3)
	s1 := env.SetOthersReady(true)
	ready, seq := env.OthersReady()
	if !ready || seq != s1 {
		t.Fatalf("OthersReady() = %t, %d, want true, %d", ready, seq, s1)
	}
	if env.Tile() != 3 {
		t.Fatalf("Tile() = %d, want 3", env.Tile())
	}
}
