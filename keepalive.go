package qnp

import (
	"time"

	"qnp/wire"
)

const (
	defaultPingTimeout    = 5000 * time.Millisecond
	defaultPingRetryCount = 5
)

// keepAlive tracks the ping/ack sub-protocol's retry state. Ping and ack
// packets never advance lastSendSeq and never allocate a notify record;
// they exist purely to detect a silent peer.
type keepAlive struct {
	pingTimeout    time.Duration
	pingRetryCount int

	pingSendCount    int
	lastPingSendTime time.Time
}

func newKeepAlive() *keepAlive {
	return &keepAlive{pingTimeout: defaultPingTimeout, pingRetryCount: defaultPingRetryCount}
}

func (k *keepAlive) setTimeouts(period time.Duration, retryCount int) error {
	if period <= 0 {
		return ErrInvalidPingTimeout
	}
	k.pingTimeout = period
	k.pingRetryCount = retryCount
	return nil
}

// shouldPing reports whether a ping is due. A zero lastPingSendTime means
// the clock was refreshed (by a construction or a just-received packet)
// and is itself refreshed to now rather than treated as an infinitely
// overdue ping.
func (k *keepAlive) shouldPing(now time.Time) bool {
	if k.lastPingSendTime.IsZero() {
		k.lastPingSendTime = now
		return false
	}
	return now.Sub(k.lastPingSendTime) > k.pingTimeout
}

func (k *keepAlive) onPingSent(now time.Time) {
	k.lastPingSendTime = now
	k.pingSendCount++
}

// onValidPacketReceived resets the retry counter; any packet from the
// peer, not just an ack, proves the connection is still alive.
func (k *keepAlive) onValidPacketReceived() {
	k.pingSendCount = 0
	k.lastPingSendTime = time.Time{}
}

func (k *keepAlive) timedOut() bool {
	return k.pingSendCount >= k.pingRetryCount
}

// needAckForFreshness reports whether an ack should be sent even absent a
// ping, to keep the peer's ack-mask horizon from going stale.
func needAckForFreshness(lastSeqRecvd, lastRecvAckAck uint32) bool {
	return lastSeqRecvd-lastRecvAckAck > wire.MaxPacketWindowSize/2
}
