package qnp

import (
	"crypto/rand"
	"encoding/binary"
)

// DefaultRandomness returns the crypto/rand-backed Randomness used when a
// Connection is constructed without one, matching the teacher's own
// preference for crypto/rand over math/rand everywhere a value crosses a
// security boundary (key material, initial sequence numbers).
func DefaultRandomness() Randomness { return cryptoRandomness{} }

func (cryptoRandomness) RandomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("qnp: crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint32(b[:])
}

func (cryptoRandomness) RandomFloat32() float32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("qnp: crypto/rand unavailable: " + err.Error())
	}
	// 24 bits of entropy is enough precision for a unit float and keeps
	// the value strictly below 1.
	v := binary.BigEndian.Uint32(b[:]) >> 8
	return float32(v) / float32(1<<24)
}

func (cryptoRandomness) RandomBuffer(out []byte) {
	if _, err := rand.Read(out); err != nil {
		panic("qnp: crypto/rand unavailable: " + err.Error())
	}
}
