package qnp

import (
	"math/rand"
	"testing"
	"time"

	"qnp/wire"
)

// TestPropertyNotifyOrdering checks that however B's receive order is
// shuffled, A's notify stream still resolves in strict ascending, gapless
// sequence order starting at initialSendSeq+1.
func TestPropertyNotifyOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		var eventsA []Event
		a, b, sockA, _, clock := connectedPair(t, 0, 0)
		a.callbacks = recordingCallbacks(&eventsA)

		n := 3 + rng.Intn(20)
		for i := 0; i < n; i++ {
			if _, err := a.SendDataPacket([]byte{byte(i)}, nil); err != nil {
				t.Fatalf("trial %d: SendDataPacket(%d): %v", trial, i, err)
			}
		}
		datagrams := sockA.take()

		order := rng.Perm(len(datagrams))
		now := clock.advance(time.Millisecond)
		deliverIndices(t, datagrams, order, b, now)

		b.sendAck()
		now = clock.advance(time.Millisecond)
		sockB := b.socket.(*fakeSocket)
		deliverAll(t, sockB, a, now)

		var seqs []uint32
		for _, e := range eventsA {
			if e.Kind == EventConnectionPacketNotify {
				seqs = append(seqs, e.Payload.(EventPacketNotify).Sequence)
			}
		}
		if len(seqs) != n {
			t.Fatalf("trial %d: got %d notifies, want %d", trial, len(seqs), n)
		}
		for i, seq := range seqs {
			if seq != uint32(i+1) {
				t.Fatalf("trial %d: notify[%d] = %d, want %d (order=%v)", trial, i, seq, i+1, order)
			}
		}
	}
}

// TestPropertyNotifyTotality checks that every sent data packet produces
// exactly one DELIVERED or DROPPED report once the sender times out,
// regardless of which random subset of datagrams actually arrived.
func TestPropertyNotifyTotality(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 15; trial++ {
		var eventsA []Event
		a, b, sockA, _, clock := connectedPair(t, 0, 0)
		a.callbacks = recordingCallbacks(&eventsA)
		if err := a.SetPingTimeouts(50*time.Millisecond, 2); err != nil {
			t.Fatalf("SetPingTimeouts: %v", err)
		}

		n := 1 + rng.Intn(15)
		for i := 0; i < n; i++ {
			if _, err := a.SendDataPacket([]byte{byte(i)}, nil); err != nil {
				t.Fatalf("trial %d: SendDataPacket(%d): %v", trial, i, err)
			}
		}
		datagrams := sockA.take()

		var delivered []int
		for i := range datagrams {
			if rng.Intn(2) == 0 {
				delivered = append(delivered, i)
			}
		}

		now := clock.advance(time.Millisecond)
		deliverIndices(t, datagrams, delivered, b, now)
		if len(delivered) > 0 {
			b.sendAck()
			now = clock.advance(time.Millisecond)
			sockB := b.socket.(*fakeSocket)
			deliverAll(t, sockB, a, now)
		}

		// Drive A to timeout so whatever wasn't acked is drained DROPPED.
		for i := 0; i < 5; i++ {
			now = clock.advance(60 * time.Millisecond)
			a.Tick(now)
			if a.State() == StateTimedOut {
				break
			}
		}
		if a.State() != StateTimedOut {
			t.Fatalf("trial %d: connection never timed out", trial)
		}

		seen := make(map[uint32]bool)
		for _, e := range eventsA {
			if e.Kind == EventConnectionPacketNotify {
				seq := e.Payload.(EventPacketNotify).Sequence
				if seen[seq] {
					t.Fatalf("trial %d: sequence %d notified twice", trial, seq)
				}
				seen[seq] = true
			}
		}
		for seq := uint32(1); seq <= uint32(n); seq++ {
			if !seen[seq] {
				t.Fatalf("trial %d: sequence %d never notified (delivered=%v)", trial, seq, delivered)
			}
		}
	}
}

// TestPropertyWindowBound checks that lastSendSeq-highestAckedSeq never
// exceeds maxPacketWindowSize-2 across a random sequence of sends and
// partial, possibly-reordered acknowledgements.
func TestPropertyWindowBound(t *testing.T) {
	rng := rand.New(rand.NewSource(13))

	for trial := 0; trial < 10; trial++ {
		a, b, sockA, _, clock := connectedPair(t, 0, 0)

		var pending [][]byte
		for step := 0; step < 200; step++ {
			if !a.win.full() && rng.Intn(3) != 0 {
				if _, err := a.SendDataPacket([]byte{byte(step)}, nil); err != nil {
					t.Fatalf("trial %d step %d: SendDataPacket: %v", trial, step, err)
				}
			}
			pending = append(pending, sockA.take()...)

			if len(pending) > 0 && rng.Intn(2) == 0 {
				i := rng.Intn(len(pending))
				now := clock.advance(time.Millisecond)
				b.ReceiveDatagram(pending[i], now)
				pending = append(pending[:i], pending[i+1:]...)
			}

			if diff := int32(a.win.lastSendSeq - a.win.highestAckedSeq); diff > wire.MaxPacketWindowSize-2 {
				t.Fatalf("trial %d step %d: window invariant violated: diff=%d", trial, step, diff)
			}

			b.sendAck()
			now := clock.advance(time.Millisecond)
			sockB := b.socket.(*fakeSocket)
			deliverAll(t, sockB, a, now)

			if diff := int32(a.win.lastSendSeq - a.win.highestAckedSeq); diff > wire.MaxPacketWindowSize-2 {
				t.Fatalf("trial %d step %d (post-ack): window invariant violated: diff=%d", trial, step, diff)
			}
		}
	}
}
