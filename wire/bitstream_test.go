package wire

import (
	"math/rand"
	"testing"
)

func TestBitWriterReaderRoundTrip(t *testing.T) {
	w := NewBitWriter()
	w.WriteBool(true)
	w.WriteUint(0x1F, 5)
	w.WriteBool(false)
	w.WriteUint(123456, 32)
	w.WriteRangedUint32(7, 0, 15)

	r := NewBitReader(w.Bytes())
	if b, err := r.ReadBool(); err != nil || !b {
		t.Fatalf("ReadBool() = %v, %v, want true, nil", b, err)
	}
	if v, err := r.ReadUint(5); err != nil || v != 0x1F {
		t.Fatalf("ReadUint(5) = %v, %v, want 0x1F, nil", v, err)
	}
	if b, err := r.ReadBool(); err != nil || b {
		t.Fatalf("ReadBool() = %v, %v, want false, nil", b, err)
	}
	if v, err := r.ReadUint(32); err != nil || v != 123456 {
		t.Fatalf("ReadUint(32) = %v, %v, want 123456, nil", v, err)
	}
	if v, err := r.ReadRangedUint32(0, 15); err != nil || v != 7 {
		t.Fatalf("ReadRangedUint32 = %v, %v, want 7, nil", v, err)
	}
}

func TestRangedUint32UsesMinimalBits(t *testing.T) {
	w := NewBitWriter()
	w.WriteRangedUint32(4, 0, 4) // needs only 3 bits (bits.Len32(4)==3)
	if got := w.BitPosition(); got != 3 {
		t.Fatalf("BitPosition() = %d, want 3", got)
	}
}

func TestRangedUint32RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		lo := uint32(rng.Intn(100))
		hi := lo + uint32(rng.Intn(500))
		v := lo + uint32(rng.Intn(int(hi-lo+1)))

		w := NewBitWriter()
		w.WriteRangedUint32(v, lo, hi)
		got, err := NewBitReader(w.Bytes()).ReadRangedUint32(lo, hi)
		if err != nil {
			t.Fatalf("ReadRangedUint32: %v", err)
		}
		if got != v {
			t.Fatalf("round trip %d in [%d,%d] got %d", v, lo, hi, got)
		}
	}
}

func TestReadPastEndErrors(t *testing.T) {
	r := NewBitReader([]byte{0xFF})
	if _, err := r.ReadUint(16); err == nil {
		t.Fatal("expected error reading past end of buffer")
	}
}
