package qnp

import "errors"

// Sentinel errors returned by the connection façade. Decode, crypto, and
// out-of-window failures are never surfaced to the peer, nor returned by
// ReceiveDatagram: they only reach the connection's debug log, since
// reacting to them on the wire would hand an attacker an oracle.
var (
	// ErrMalformedHeader covers non-zero pad bits, an out-of-range
	// ack_byte_count, or an invalid packet type.
	ErrMalformedHeader = errors.New("qnp: malformed packet header")

	// ErrSignatureMismatch means decryption produced a payload whose
	// truncated signature didn't verify; the datagram is dropped with no
	// further detail to avoid becoming a decryption oracle.
	ErrSignatureMismatch = errors.New("qnp: signature mismatch")

	// ErrOutOfWindow means the reconstructed send sequence or highest-ack
	// fell outside the packet window relative to current connection state.
	ErrOutOfWindow = errors.New("qnp: sequence outside packet window")

	// ErrWindowFull is returned by SendDataPacket when the send window is
	// already at capacity. It is a non-fatal caller error, not a protocol
	// violation; paced sends from Tick check the window first and never
	// hit it.
	ErrWindowFull = errors.New("qnp: send window full")

	// ErrNotConnected is returned by operations that require StateConnected.
	ErrNotConnected = errors.New("qnp: connection is not in the connected state")

	// ErrInvalidPingTimeout is returned by SetPingTimeouts for a zero or
	// negative timeout, whose behavior the source protocol leaves undefined.
	ErrInvalidPingTimeout = errors.New("qnp: ping timeout must be positive")

	// ErrNoCipher is returned when a caller attempts to send or receive
	// protocol packets before a handshake has installed a session cipher.
	ErrNoCipher = errors.New("qnp: no session cipher installed")

	// ErrInvalidRateParameters is returned by SetFixedRateParameters when a
	// period or bandwidth value falls outside the wire's ranged-integer
	// bounds (MaxFixedSendPeriod, MaxFixedBandwidth).
	ErrInvalidRateParameters = errors.New("qnp: rate parameter out of range")
)
