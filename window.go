package qnp

import "qnp/wire"

// windowState is the sliding send/receive window: sequence counters, the
// per-slot "last seq received at send" array, and the receive-ack bitmask.
// It has no notion of notify records or payload bytes; connection.go glues
// those on top.
type windowState struct {
	lastSendSeq     uint32
	highestAckedSeq uint32

	lastSeqRecvd   uint32
	lastRecvAckAck uint32

	ackMask [wire.MaxAckMaskWords]uint32

	lastSeqRecvdAtSend [wire.MaxPacketWindowSize]uint32
}

func newWindowState(initialSendSeq, initialRecvSeq uint32) *windowState {
	return &windowState{
		lastSendSeq:     initialSendSeq,
		highestAckedSeq: initialSendSeq,
		lastSeqRecvd:    initialRecvSeq,
		lastRecvAckAck:  initialRecvSeq,
	}
}

// full reports whether the window invariant (lastSendSeq - highestAckedSeq
// <= maxPacketWindowSize - 2) would be violated by allocating one more seq.
func (w *windowState) full() bool {
	return w.lastSendSeq-w.highestAckedSeq >= wire.MaxPacketWindowSize-2
}

// allocateSendSeq assigns and returns the sequence for the next emitted
// data packet. Callers must have checked full() first.
func (w *windowState) allocateSendSeq() uint32 {
	w.lastSendSeq++
	w.lastSeqRecvdAtSend[w.lastSendSeq&wire.PacketWindowMask] = w.lastSeqRecvd
	return w.lastSendSeq
}

// receive folds a newly-arrived packet's sequence into lastSeqRecvd and the
// ack bitmask, per the shift-on-receive rule in the packet header spec.
// isDataPacket controls which bit is set: only data packets count as
// "delivered payloads" for the peer's own notify bookkeeping. A packet
// that arrives behind the current lastSeqRecvd (reordered, as in the
// classic 3,1,2,5,4 arrival pattern) does not shift the mask at all; it
// only back-fills the bit at its own offset, since the mask's position 0
// must always track the single highest sequence seen so far.
func (w *windowState) receive(pkSequence uint32, isDataPacket bool) {
	diff := int32(pkSequence - w.lastSeqRecvd)

	if diff <= 0 {
		offset := uint32(-diff)
		if isDataPacket {
			w.setAckBit(offset)
		}
		return
	}

	shift := uint32(diff)
	if shift > wire.MaxPacketWindowSize {
		// Whole-word shifts: with MaxAckMaskWords == 1 there is only one
		// word, so any shift beyond the window clears it entirely.
		for i := range w.ackMask {
			w.ackMask[i] = 0
		}
	} else {
		shiftAckMask(&w.ackMask, shift)
	}

	if isDataPacket {
		w.ackMask[0] |= 1
	}
	w.lastSeqRecvd = pkSequence
}

// setAckBit sets the bit for offset k (sequence lastSeqRecvd-k) without
// disturbing any other bit, used for reordered arrivals.
func (w *windowState) setAckBit(k uint32) {
	if k >= wire.MaxPacketWindowSize {
		return
	}
	word := k >> 5
	bit := k & 31
	if int(word) < len(w.ackMask) {
		w.ackMask[word] |= 1 << bit
	}
}

// shiftAckMask shifts the bit array left by n bits (n in [1, 32]),
// carrying bits across word boundaries, word 0 holding the low bits.
func shiftAckMask(mask *[wire.MaxAckMaskWords]uint32, n uint32) {
	if n >= 32 {
		for i := len(mask) - 1; i > 0; i-- {
			mask[i] = mask[i-1]
		}
		mask[0] = 0
		n -= 32
		if n == 0 {
			return
		}
	}
	var carry uint32
	for i := 0; i < len(mask); i++ {
		shifted := (mask[i] << n) | carry
		carry = mask[i] >> (32 - n)
		mask[i] = shifted
	}
}

// ackBit reports whether the bit for sequence lastSeqRecvd-k is set.
func (w *windowState) ackBit(k uint32) bool {
	if k >= wire.MaxPacketWindowSize {
		return false
	}
	word := k >> 5
	bit := k & 31
	if int(word) >= len(w.ackMask) {
		return false
	}
	return (w.ackMask[word]>>bit)&1 != 0
}

// clampLastRecvAckAck enforces lastRecvAckAck <= lastSeqRecvd and the
// maxPacketWindowSize gap bound after an ack is processed.
func (w *windowState) clampLastRecvAckAck(pkSequence uint32) {
	if pkSequence-w.lastRecvAckAck > wire.MaxPacketWindowSize {
		w.lastRecvAckAck = pkSequence - wire.MaxPacketWindowSize
	}
}
