package qnp

import (
	"fmt"
	"net"
	"time"

	"qnp/wire"
)

// maxDatagramSize is the fallback MTU-derived cap on a single packet's
// total size, used when the Socket collaborator doesn't advertise its own
// via MaxDatagramSize.
const maxDatagramSize = 1400

// Connection is the single-threaded notification-protocol endpoint. All
// methods must be called from one goroutine; it does no locking of its own.
type Connection struct {
	remoteAddr net.Addr
	socket     Socket
	rng        Randomness
	clock      Clock
	handshake  Handshake
	callbacks  Callbacks
	log        connLogger
	mtu        int

	state  State
	cipher Cipher

	win       *windowState
	notify    notifyQueue
	rate      *rateController
	keepAlive *keepAlive

	roundTripTime         float64 // ms, exponentially smoothed
	highestAckedSendTime  time.Time

	simulatedLatency    time.Duration
	simulatedPacketLoss float32

	outbox      [][]byte
	outboxExtra []any
}

// NewConnection constructs a connection in StateNotConnected, ready for a
// Handshake to drive forward. rng and clock may be nil, in which case a
// crypto/rand- and time.Now-backed default is used; socket may be nil, in
// which case every send is silently discarded; callbacks may be the zero
// value if the application doesn't need events.
func NewConnection(remoteAddr net.Addr, socket Socket, hs Handshake, rng Randomness, clock Clock, callbacks Callbacks) *Connection {
	if rng == nil {
		rng = DefaultRandomness()
	}
	if clock == nil {
		clock = systemClock{}
	}
	mtu := maxDatagramSize
	if socket != nil {
		if sz := socket.MaxDatagramSize(); sz > 0 {
			mtu = sz
		}
	}
	c := &Connection{
		remoteAddr: remoteAddr,
		socket:     socket,
		rng:        rng,
		clock:      clock,
		handshake:  hs,
		callbacks:  callbacks,
		log:        newConnLogger(remoteAddr),
		mtu:        mtu,
		state:      StateNotConnected,
		win:        newWindowState(0, 0),
		rate:       newRateController(mtu),
		keepAlive:  newKeepAlive(),
	}
	return c
}

func (c *Connection) State() State       { return c.state }
func (c *Connection) RemoteAddr() net.Addr { return c.remoteAddr }
func (c *Connection) RoundTripTime() time.Duration {
	return time.Duration(c.roundTripTime * float64(time.Millisecond))
}

func (c *Connection) setState(s State) {
	if c.state == s {
		return
	}
	c.log.infoState(c.state, s)
	c.state = s
}

// CompleteHandshake is called by a Handshake implementation once a session
// cipher and both initial sequence numbers are known. It is the only way a
// connection transitions into StateConnected.
func (c *Connection) CompleteHandshake(cipher Cipher, initialSendSeq, initialRecvSeq uint32, remoteAddr net.Addr) {
	c.cipher = cipher
	c.win = newWindowState(initialSendSeq, initialRecvSeq)
	if remoteAddr != nil {
		c.remoteAddr = remoteAddr
		c.log = newConnLogger(remoteAddr)
	}
	c.setState(StateConnected)
	c.callbacks.emit(EventConnectionEstablished, nil)
}

// RejectHandshake transitions to StateConnectRejected; no further sends or
// receives are processed afterward.
func (c *Connection) RejectHandshake() { c.setState(StateConnectRejected) }

// TimeOutHandshake transitions to StateConnectTimedOut.
func (c *Connection) TimeOutHandshake() { c.setState(StateConnectTimedOut) }

// SetState lets a Handshake implementation move between the pre-connected
// states it owns (StateAwaitingChallengeResponse, StateSendingPunchPackets,
// StateComputingPuzzleSolution, StateAwaitingConnectResponse). Attempting to
// set StateConnected this way is rejected; use CompleteHandshake instead.
func (c *Connection) SetState(s State) error {
	if s == StateConnected {
		return fmt.Errorf("qnp: use CompleteHandshake to reach StateConnected")
	}
	c.setState(s)
	return nil
}

// SetPingTimeouts configures the keep-alive period and retry count.
func (c *Connection) SetPingTimeouts(period time.Duration, retryCount int) error {
	return c.keepAlive.setTimeouts(period, retryCount)
}

// SetSimulatedNetParams installs the test-hook packet loss and latency
// applied to outbound sends; it has no effect on inbound processing.
func (c *Connection) SetSimulatedNetParams(packetLoss float32, latency time.Duration) error {
	if packetLoss < 0 || packetLoss > 1 {
		return fmt.Errorf("qnp: simulated packet loss must be in [0, 1]")
	}
	c.simulatedPacketLoss = packetLoss
	c.simulatedLatency = latency
	return nil
}

// SetFixedRateParameters installs this side's local rate advertisement and
// re-negotiates the current send period/size.
func (c *Connection) SetFixedRateParameters(minSendPeriod, minRecvPeriod time.Duration, maxSendBW, maxRecvBW uint32) error {
	rate := NetRate{
		MinPacketSendPeriod: minSendPeriod,
		MinPacketRecvPeriod: minRecvPeriod,
		MaxSendBandwidth:    maxSendBW,
		MaxRecvBandwidth:    maxRecvBW,
	}
	if _, err := rangedMillis(minSendPeriod); err != nil {
		return err
	}
	if _, err := rangedMillis(minRecvPeriod); err != nil {
		return err
	}
	if maxSendBW > MaxFixedBandwidth || maxRecvBW > MaxFixedBandwidth {
		return ErrInvalidRateParameters
	}
	c.rate.setLocal(rate, c.mtu)
	return nil
}

// EnqueuePayload queues an application payload for paced transmission on
// a future Tick, rather than sending it immediately. extra is attached to
// the eventual EventConnectionPacketNotify.
func (c *Connection) EnqueuePayload(payload []byte, extra any) {
	c.outbox = append(c.outbox, payload)
	c.outboxExtra = append(c.outboxExtra, extra)
}

// SendDataPacket immediately sends payload as a new data packet, bypassing
// the rate-controller's pacing queue. It requires StateConnected and an
// unfull window.
func (c *Connection) SendDataPacket(payload []byte, extra any) (uint32, error) {
	if c.state != StateConnected {
		return 0, ErrNotConnected
	}
	if c.win.full() {
		return 0, ErrWindowFull
	}
	return c.sendDataPacketNow(payload, extra)
}

func (c *Connection) sendDataPacketNow(payload []byte, extra any) (uint32, error) {
	seq := c.win.allocateSendSeq()

	rateChanged := c.rate.localChanged
	rec := PacketNotify{SendTime: c.clock.Now(), RateChanged: rateChanged, Extra: extra}
	c.notify.push(seq, rec)
	if rateChanged {
		c.rate.localChanged = false
	}

	buf, err := c.encodePacket(wire.DataPacket, seq, payload, rateChanged)
	if err != nil {
		return 0, err
	}
	c.log.debugPacket("data", seq)
	c.sendRaw(buf)
	return seq, nil
}

func (c *Connection) sendPing(now time.Time) {
	buf, err := c.encodePacket(wire.PingPacket, c.win.lastSendSeq, nil, false)
	if err != nil {
		return
	}
	c.keepAlive.onPingSent(now)
	c.log.debugPacket("ping", c.win.lastSendSeq)
	c.sendRaw(buf)
}

func (c *Connection) sendAck() {
	buf, err := c.encodePacket(wire.AckPacket, c.win.lastSendSeq, nil, false)
	if err != nil {
		return
	}
	c.log.debugPacket("ack", c.win.lastSendSeq)
	c.sendRaw(buf)
}

func (c *Connection) sendRaw(buf []byte) {
	if c.socket == nil {
		return
	}
	if c.simulatedPacketLoss > 0 && c.rng.RandomFloat32() < c.simulatedPacketLoss {
		return
	}
	if c.simulatedLatency > 0 {
		c.socket.SendToDelayed(c.remoteAddr, buf, c.simulatedLatency)
		return
	}
	c.socket.SendTo(c.remoteAddr, buf)
}

// Tick drives pacing, keep-alive, and timeout for one simulated instant.
func (c *Connection) Tick(now time.Time) {
	if c.state.Terminal() {
		return
	}
	if c.state != StateConnected {
		if c.handshake != nil {
			out, err := c.handshake.Advance(c, now, nil)
			if err == nil && out != nil {
				c.sendRaw(out)
			}
		}
		return
	}

	if c.keepAlive.timedOut() {
		c.timeOut(now)
		return
	}

	if c.rate.readyToSend(now) && !c.win.full() && len(c.outbox) > 0 {
		payload := c.outbox[0]
		extra := c.outboxExtra[0]
		c.outbox = c.outbox[1:]
		c.outboxExtra = c.outboxExtra[1:]
		c.sendDataPacketNow(payload, extra)
	}

	if c.keepAlive.shouldPing(now) {
		c.sendPing(now)
	} else if needAckForFreshness(c.win.lastSeqRecvd, c.win.lastRecvAckAck) {
		c.sendAck()
	}
}

func (c *Connection) timeOut(now time.Time) {
	c.setState(StateTimedOut)
	c.drainNotifyQueue(false)
	c.callbacks.emit(EventConnectionTimedOut, EventTimedOut{})
}

// Disconnect moves the connection to StateDisconnected and drains any
// outstanding notify records as DROPPED. reason is carried to the peer by
// a higher layer (the core has no disconnect wire packet of its own).
func (c *Connection) Disconnect(reason []byte) {
	if c.state.Terminal() {
		return
	}
	c.setState(StateDisconnected)
	c.drainNotifyQueue(false)
	c.callbacks.emit(EventConnectionDisconnected, EventDisconnected{Reason: reason})
}

func (c *Connection) drainNotifyQueue(delivered bool) {
	from := c.win.highestAckedSeq + 1
	to := c.win.lastSendSeq
	if from > to {
		return
	}
	c.notify.drainDropped(from, to, func(seq uint32, _ PacketNotify) {
		c.callbacks.emit(EventConnectionPacketNotify, EventPacketNotify{Sequence: seq, Delivered: delivered})
	})
	c.win.highestAckedSeq = to
}

// ReceiveDatagram decodes and authenticates an inbound datagram and folds
// it into window/notify/keep-alive state. Malformed, unauthenticated, or
// out-of-window datagrams are silently dropped (logged at Debug) and
// report no error to the caller, since the wire protocol must never give
// an attacker feedback about why a forged datagram failed.
func (c *Connection) ReceiveDatagram(raw []byte, now time.Time) {
	if c.state.Terminal() {
		return
	}
	if c.state != StateConnected {
		if c.handshake != nil {
			out, err := c.handshake.Advance(c, now, raw)
			if err == nil && out != nil {
				c.sendRaw(out)
			}
		}
		return
	}

	pk, err := c.decodePacket(raw)
	if err != nil {
		c.log.debugDropped(err, nil)
		return
	}

	c.keepAlive.onValidPacketReceived()

	isData := pk.typ == wire.DataPacket
	// A data packet at or behind lastSeqRecvd whose ack bit is already set
	// is a duplicate; its payload was delivered when it first arrived.
	isNew := true
	if back := c.win.lastSeqRecvd - pk.sendSeq; int32(back) >= 0 {
		isNew = !c.win.ackBit(back)
	}
	c.win.receive(pk.sendSeq, isData)
	c.walkNotifies(pk.highestAck, pk.ackMask, now)
	c.win.clampLastRecvAckAck(c.win.lastSeqRecvd)

	if pk.rateChanged {
		c.rate.setRemote(pk.remoteRate, c.mtu)
	}

	if isData && isNew {
		c.log.debugPacket("data-received", pk.sendSeq)
		c.callbacks.emit(EventConnectionPacket, EventPacket{Sequence: pk.sendSeq, Payload: pk.payload})
	}

	switch pk.typ {
	case wire.PingPacket:
		c.sendAck()
	default:
		if needAckForFreshness(c.win.lastSeqRecvd, c.win.lastRecvAckAck) {
			c.sendAck()
		}
	}
}

// walkNotifies resolves every PacketNotify between the previous
// highestAckedSeq and pkHighestAck, in strict send order, per the notify
// walk algorithm: the ack bitmask only tells us DELIVERED vs DROPPED, the
// ordered queue is what tells us which record each bit refers to.
func (c *Connection) walkNotifies(pkHighestAck uint32, pkAckMask [wire.MaxAckMaskWords]uint32, now time.Time) {
	notifyCount := pkHighestAck - c.win.highestAckedSeq
	for i := uint32(1); i <= notifyCount; i++ {
		notifyIndex := c.win.highestAckedSeq + i
		offset := pkHighestAck - notifyIndex
		bit := offset & 0x1F
		word := offset >> 5

		delivered := false
		if int(word) < len(pkAckMask) {
			delivered = (pkAckMask[word]>>bit)&1 != 0
		}

		rec := c.notify.pop(notifyIndex)
		if !delivered && rec.RateChanged {
			c.rate.localChanged = true
		}
		if delivered {
			c.highestAckedSendTime = rec.SendTime
			c.updateRTT(now.Sub(rec.SendTime))
			c.win.lastRecvAckAck = c.win.lastSeqRecvdAtSend[notifyIndex&wire.PacketWindowMask]
		}

		c.log.debugNotify(notifyIndex, delivered)
		c.callbacks.emit(EventConnectionPacketNotify, EventPacketNotify{
			Sequence:  notifyIndex,
			Delivered: delivered,
			Extra:     rec.Extra,
		})
	}
	c.win.highestAckedSeq = pkHighestAck
}

func (c *Connection) updateRTT(sample time.Duration) {
	ms := float64(sample) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	c.roundTripTime = 0.9*c.roundTripTime + 0.1*ms
}
