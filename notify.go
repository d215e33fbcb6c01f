package qnp

import (
	"time"

	"qnp/wire"
)

// PacketNotify is the per-sent-data-packet bookkeeping record. It lives
// from the moment the packet is handed to the socket until its outcome
// (DELIVERED or DROPPED) is reported.
type PacketNotify struct {
	SendTime    time.Time
	RateChanged bool
	Extra       any
}

// notifyQueue is the FIFO of pending PacketNotify records, one per
// in-flight data packet. It is implemented as a ring buffer addressed by
// seq & packetWindowMask rather than a linked list: records are always
// pushed at lastSendSeq and popped at highestAckedSeq+1, so the same
// modular index used for lastSeqRecvdAtSend addresses it directly, with no
// per-record allocation.
type notifyQueue struct {
	buf [wire.MaxPacketWindowSize]PacketNotify
	len int
}

func (q *notifyQueue) push(seq uint32, rec PacketNotify) {
	q.buf[seq&wire.PacketWindowMask] = rec
	q.len++
}

// pop returns the record for seq and removes it from the queue. Callers
// must pop in strict increasing seq order; the queue does not itself
// enforce this, since connection.go always walks notifyIndex in order.
func (q *notifyQueue) pop(seq uint32) PacketNotify {
	rec := q.buf[seq&wire.PacketWindowMask]
	q.buf[seq&wire.PacketWindowMask] = PacketNotify{}
	q.len--
	return rec
}

func (q *notifyQueue) Len() int { return q.len }

// drainDropped pops every remaining record in seq order [from, to] and
// invokes fn for each, used when a connection times out or disconnects
// with packets still in flight.
func (q *notifyQueue) drainDropped(from, to uint32, fn func(seq uint32, rec PacketNotify)) {
	for seq := from; seq != to+1; seq++ {
		if q.len == 0 {
			return
		}
		fn(seq, q.pop(seq))
	}
}
