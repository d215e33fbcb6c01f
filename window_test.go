package qnp

import (
	"math/rand"
	"testing"

	"qnp/wire"
)

func TestWindowFullInvariant(t *testing.T) {
	w := newWindowState(0, 0)
	for i := 0; i < wire.MaxPacketWindowSize-2; i++ {
		if w.full() {
			t.Fatalf("window reported full after %d allocations", i)
		}
		w.allocateSendSeq()
	}
	if !w.full() {
		t.Fatal("expected window full after maxPacketWindowSize-2 allocations")
	}
}

func TestAckMaskShiftSetsBit0(t *testing.T) {
	w := newWindowState(0, 0)
	w.receive(1, true)
	if !w.ackBit(0) {
		t.Fatal("expected bit 0 set after receiving a data packet")
	}

	w.receive(2, false)
	if w.ackBit(0) {
		t.Fatal("expected bit 0 clear after receiving a non-data packet")
	}
	if !w.ackBit(1) {
		t.Fatal("expected bit for previous data packet to have shifted to position 1")
	}
}

func TestAckMaskMonotonicUntilShiftedOut(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := newWindowState(0, 0)

	set := map[uint32]bool{}
	seq := uint32(0)
	for i := 0; i < 500; i++ {
		isData := rng.Intn(2) == 0
		seq++
		w.receive(seq, isData)
		if isData {
			set[seq] = true
		}

		for s, wasSet := range set {
			if seq-s >= wire.MaxPacketWindowSize {
				continue
			}
			if wasSet && !w.ackBit(seq-s) {
				t.Fatalf("bit for seq %d cleared while still within window (offset %d)", s, seq-s)
			}
		}
	}
}

func TestWholeWordShiftClearsMask(t *testing.T) {
	w := newWindowState(0, 0)
	w.receive(1, true)
	w.receive(1+wire.MaxPacketWindowSize+5, true)
	for k := uint32(1); k < wire.MaxPacketWindowSize; k++ {
		if w.ackBit(k) {
			t.Fatalf("bit %d unexpectedly set after a whole-window shift", k)
		}
	}
	if !w.ackBit(0) {
		t.Fatal("expected bit 0 set for the packet that triggered the shift")
	}
}

func TestClampLastRecvAckAck(t *testing.T) {
	w := newWindowState(0, 0)
	w.lastRecvAckAck = 0
	w.clampLastRecvAckAck(wire.MaxPacketWindowSize + 100)
	want := uint32(100)
	if w.lastRecvAckAck != want {
		t.Fatalf("lastRecvAckAck = %d, want %d", w.lastRecvAckAck, want)
	}
}
