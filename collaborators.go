package qnp

import (
	"net"
	"time"

	"qnp/envelope"
)

// Socket is the outbound datagram transport the connection façade drives.
// It is deliberately minimal: the façade never reads from a socket, it is
// always handed a datagram via ReceiveDatagram by whatever event loop owns
// the real net.PacketConn.
type Socket interface {
	SendTo(addr net.Addr, b []byte) error
	// SendToDelayed is used by the simulated-latency test hook; a real
	// socket implementation can just time.AfterFunc to SendTo.
	SendToDelayed(addr net.Addr, b []byte, delay time.Duration) error
	MaxDatagramSize() int
}

// Randomness is the randomness source external to the core. Production
// code backs it with crypto/rand; tests back it with a deterministic
// source so scenarios are reproducible.
type Randomness interface {
	RandomUint32() uint32
	RandomFloat32() float32 // unit interval [0, 1)
	RandomBuffer(out []byte)
}

// Clock abstracts wall-clock time so tests can drive Tick deterministically.
type Clock interface {
	Now() time.Time
}

// Cipher is re-exported from envelope so callers constructing a Connection
// don't need to import envelope just to name the type.
type Cipher = envelope.Cipher

// Handshake is the external collaborator that owns every pre-connected
// state transition: challenge/response, puzzle solving, NAT-traversal
// punch packets, and key exchange. The core calls Advance whenever the
// connection is not yet StateConnected (and not in a terminal state),
// whether driven by a Tick or by an inbound datagram: every datagram that
// arrives before StateConnected is handed to Advance, and none after.
// Advance drives the
// connection forward via the exported completion hooks on Connection
// (CompleteHandshake, RejectHandshake, TimeOutHandshake, SetState) and
// returns a datagram to send to the peer, if any.
type Handshake interface {
	Advance(c *Connection, now time.Time, in []byte) (out []byte, err error)
}

// systemClock backs the zero-value Clock with time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// cryptoRandomness backs the zero-value Randomness with crypto/rand.
type cryptoRandomness struct{}
