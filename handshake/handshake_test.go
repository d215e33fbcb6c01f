package handshake

import (
	"bytes"
	"net"
	"testing"
	"time"

	"qnp"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

type fakeSocket struct{ sent [][]byte }

func (s *fakeSocket) SendTo(_ net.Addr, b []byte) error {
	s.sent = append(s.sent, append([]byte{}, b...))
	return nil
}
func (s *fakeSocket) SendToDelayed(a net.Addr, b []byte, _ time.Duration) error {
	return s.SendTo(a, b)
}
func (s *fakeSocket) MaxDatagramSize() int { return 1400 }

func (s *fakeSocket) take() [][]byte {
	out := s.sent
	s.sent = nil
	return out
}

// TestFullExchangeEstablishesMatchingCipher drives a complete
// initiator/responder round trip and checks both sides end up StateConnected
// with ciphers that agree (a plaintext encrypted by one decrypts cleanly on
// the other).
func TestFullExchangeEstablishesMatchingCipher(t *testing.T) {
	initiator, err := NewInitiator()
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	responder, err := NewResponder()
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	sockA, sockB := &fakeSocket{}, &fakeSocket{}
	now := time.Now()

	var gotPayload []byte
	bCallbacks := qnp.Callbacks{OnEvent: func(e qnp.Event) {
		if e.Kind == qnp.EventConnectionPacket {
			gotPayload = e.Payload.(qnp.EventPacket).Payload
		}
	}}

	a := qnp.NewConnection(fakeAddr("b"), sockA, initiator, nil, nil, qnp.Callbacks{})
	b := qnp.NewConnection(fakeAddr("a"), sockB, responder, nil, nil, bCallbacks)

	a.Tick(now) // initiator sends hello
	hello := sockA.take()
	if len(hello) != 1 {
		t.Fatalf("got %d hello datagrams, want 1", len(hello))
	}

	b.ReceiveDatagram(hello[0], now) // responder replies with accept
	accept := sockB.take()
	if len(accept) != 1 {
		t.Fatalf("got %d accept datagrams, want 1", len(accept))
	}

	a.ReceiveDatagram(accept[0], now) // initiator installs its cipher

	if a.State() != qnp.StateConnected {
		t.Fatalf("initiator state = %v, want Connected", a.State())
	}
	if b.State() != qnp.StateConnected {
		t.Fatalf("responder state = %v, want Connected", b.State())
	}

	seq, err := a.SendDataPacket([]byte("hello world"), nil)
	if err != nil {
		t.Fatalf("SendDataPacket: %v", err)
	}
	if seq == 0 {
		t.Fatal("unexpected zero sequence")
	}

	datagrams := sockA.take()
	for _, dg := range datagrams {
		b.ReceiveDatagram(dg, now)
	}
	if !bytes.Equal(gotPayload, []byte("hello world")) {
		t.Fatalf("responder decrypted payload = %q, want %q", gotPayload, "hello world")
	}
}

// TestAdvanceAfterDoneIsNoop checks that a Reference which has already
// completed the exchange does not emit further datagrams or errors.
func TestAdvanceAfterDoneIsNoop(t *testing.T) {
	initiator, err := NewInitiator()
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	responder, err := NewResponder()
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	sockA, sockB := &fakeSocket{}, &fakeSocket{}
	now := time.Now()
	a := qnp.NewConnection(fakeAddr("b"), sockA, initiator, nil, nil, qnp.Callbacks{})
	b := qnp.NewConnection(fakeAddr("a"), sockB, responder, nil, nil, qnp.Callbacks{})

	a.Tick(now)
	b.ReceiveDatagram(sockA.take()[0], now)
	a.ReceiveDatagram(sockB.take()[0], now)

	out, err := initiator.Advance(a, now, nil)
	if err != nil || out != nil {
		t.Fatalf("Advance after done = (%v, %v), want (nil, nil)", out, err)
	}
}
