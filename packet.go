package qnp

import (
	"fmt"
	"time"

	"qnp/envelope"
	"qnp/wire"
)

// encodePacket builds the full cleartext-header-plus-encrypted-region
// datagram for typ, sealing it with c.cipher. payload is nil for ping and
// ack packets. rateChanged and rate are only meaningful for data packets;
// ping/ack packets always encode rateChanged as false.
func (c *Connection) encodePacket(typ wire.PacketType, seq uint32, payload []byte, rateChanged bool) ([]byte, error) {
	if c.cipher == nil {
		return nil, ErrNoCipher
	}

	// The header's ack field carries our own receive progress (lastSeqRecvd),
	// which is what the peer reconstructs into *their* highestAckedSeq.
	w := wire.NewBitWriter()
	wire.WriteHeader(w, typ, seq, c.win.lastSeqRecvd)

	w.WriteRangedUint32(wire.MaxAckByteCount, 0, wire.MaxAckByteCount)
	wire.WriteAckMask(w, c.win.ackMask, wire.MaxAckByteCount)

	w.WriteBool(rateChanged)
	if rateChanged {
		if err := writeNetRate(w, c.rate.local); err != nil {
			return nil, err
		}
	}
	w.PadToByte()

	buf := append(w.Bytes(), payload...)

	c.cipher.SetupCounter(seq, c.win.lastSeqRecvd, uint8(typ), 0)
	return envelope.Seal(buf, wire.PacketHeaderByteSize, c.cipher)
}

// decodedPacket is the result of decoding and authenticating one inbound
// datagram, before it is folded into connection/window state.
type decodedPacket struct {
	typ         wire.PacketType
	sendSeq     uint32
	highestAck  uint32
	ackMask     [wire.MaxAckMaskWords]uint32
	rateChanged bool
	remoteRate  NetRate
	payload     []byte
}

// decodePacket authenticates and parses raw against the connection's
// current window state and cipher. It returns ErrMalformedHeader,
// ErrOutOfWindow or ErrSignatureMismatch for any datagram that fails
// validation (ErrNoCipher if no cipher is installed); all are
// silently-dropped conditions at the caller.
func (c *Connection) decodePacket(raw []byte) (decodedPacket, error) {
	if c.cipher == nil {
		return decodedPacket{}, ErrNoCipher
	}

	header, err := wire.ReadHeader(wire.NewBitReader(raw))
	if err != nil {
		return decodedPacket{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	sendSeq := wire.ReconstructSendSeq(header.PartialSendSeq, c.win.lastSeqRecvd)
	// ReconstructSendSeq only resolves forward. A result that lands less
	// than a packet window short of a full sequence window ahead is a
	// reordered arrival just behind lastSeqRecvd.
	if behind := c.win.lastSeqRecvd - (sendSeq - wire.SequenceNumberWindowSize); behind < wire.MaxPacketWindowSize {
		sendSeq -= wire.SequenceNumberWindowSize
	}
	highestAck := wire.ReconstructHighestAck(header.PartialHighestAck, c.win.highestAckedSeq)

	// Ahead of lastSeqRecvd by more than a window is rejected; behind is a
	// normal reordered arrival and is handled by windowState.receive.
	if diff := int32(sendSeq - c.win.lastSeqRecvd); diff > wire.MaxPacketWindowSize-1 {
		return decodedPacket{}, fmt.Errorf("%w: send seq too far ahead", ErrOutOfWindow)
	}
	if diff := int32(highestAck - c.win.highestAckedSeq); diff > int32(c.win.lastSendSeq-c.win.highestAckedSeq) {
		return decodedPacket{}, fmt.Errorf("%w: highest ack beyond lastSendSeq", ErrOutOfWindow)
	}

	c.cipher.SetupCounter(sendSeq, highestAck, uint8(header.Type), 0)
	plaintext, err := envelope.Open(raw, wire.PacketHeaderByteSize, c.cipher)
	if err != nil {
		return decodedPacket{}, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	r := wire.NewBitReader(plaintext)
	ackByteCount, err := r.ReadRangedUint32(0, wire.MaxAckByteCount)
	if err != nil {
		return decodedPacket{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	mask, err := wire.ReadAckMask(r, int(ackByteCount))
	if err != nil {
		return decodedPacket{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	rateChanged, err := r.ReadBool()
	if err != nil {
		return decodedPacket{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	var remoteRate NetRate
	if rateChanged {
		remoteRate, err = readNetRate(r)
		if err != nil {
			return decodedPacket{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
		}
	}
	if err := r.AlignToByte(); err != nil {
		return decodedPacket{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	payload := plaintext[r.BytePosition():]
	return decodedPacket{
		typ:         header.Type,
		sendSeq:     sendSeq,
		highestAck:  highestAck,
		ackMask:     mask,
		rateChanged: rateChanged,
		remoteRate:  remoteRate,
		payload:     payload,
	}, nil
}

func writeNetRate(w *wire.BitWriter, rate NetRate) error {
	period, err := rangedMillis(rate.MinPacketSendPeriod)
	if err != nil {
		return err
	}
	recvPeriod, err := rangedMillis(rate.MinPacketRecvPeriod)
	if err != nil {
		return err
	}
	if rate.MaxSendBandwidth > MaxFixedBandwidth || rate.MaxRecvBandwidth > MaxFixedBandwidth {
		return ErrInvalidRateParameters
	}
	w.WriteRangedUint32(period, 0, MaxFixedSendPeriod)
	w.WriteRangedUint32(recvPeriod, 0, MaxFixedSendPeriod)
	w.WriteRangedUint32(rate.MaxSendBandwidth, 0, MaxFixedBandwidth)
	w.WriteRangedUint32(rate.MaxRecvBandwidth, 0, MaxFixedBandwidth)
	return nil
}

func readNetRate(r *wire.BitReader) (NetRate, error) {
	period, err := r.ReadRangedUint32(0, MaxFixedSendPeriod)
	if err != nil {
		return NetRate{}, err
	}
	recvPeriod, err := r.ReadRangedUint32(0, MaxFixedSendPeriod)
	if err != nil {
		return NetRate{}, err
	}
	sendBW, err := r.ReadRangedUint32(0, MaxFixedBandwidth)
	if err != nil {
		return NetRate{}, err
	}
	recvBW, err := r.ReadRangedUint32(0, MaxFixedBandwidth)
	if err != nil {
		return NetRate{}, err
	}
	return NetRate{
		MinPacketSendPeriod: time.Duration(period) * time.Millisecond,
		MinPacketRecvPeriod: time.Duration(recvPeriod) * time.Millisecond,
		MaxSendBandwidth:    sendBW,
		MaxRecvBandwidth:    recvBW,
	}, nil
}

func rangedMillis(d time.Duration) (uint32, error) {
	ms := d.Milliseconds()
	if ms < 0 || ms > MaxFixedSendPeriod {
		return 0, ErrInvalidRateParameters
	}
	return uint32(ms), nil
}
