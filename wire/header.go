package wire

import "fmt"

// Protocol-wide bit-width constants. These follow directly from
// max_packet_window_size_shift = 5, which fixes the window (and therefore
// the ack mask) at 32 packets.
const (
	SequenceNumberBitSize    = 11
	AckSequenceNumberBitSize = 10

	MaxPacketWindowSizeShift = 5
	MaxPacketWindowSize      = 1 << MaxPacketWindowSizeShift
	PacketWindowMask         = MaxPacketWindowSize - 1

	MaxAckMaskWords  = MaxPacketWindowSize >> 5
	MaxAckByteCount  = MaxAckMaskWords << 2

	SequenceNumberWindowSize    = 1 << SequenceNumberBitSize
	AckSequenceNumberWindowSize = 1 << AckSequenceNumberBitSize

	sequenceNumberMask    = ^uint32(SequenceNumberWindowSize - 1)
	ackSequenceNumberMask = ^uint32(AckSequenceNumberWindowSize - 1)

	// PacketHeaderBitSize is type(2) + dataPacketFlag(1) + send seq(11) + highest ack(10).
	PacketHeaderBitSize  = 3 + AckSequenceNumberBitSize + SequenceNumberBitSize
	PacketHeaderByteSize = (PacketHeaderBitSize + 7) >> 3
	PacketHeaderPadBits  = (PacketHeaderByteSize << 3) - PacketHeaderBitSize

	// MessageSignatureBytes is the truncated integrity tag appended after
	// the plaintext region and encrypted along with it.
	MessageSignatureBytes = 5
)

func init() {
	if PacketHeaderPadBits != 0 {
		panic("wire: packet header does not align to a byte boundary with these bit widths")
	}
}

// PacketType identifies the three wire packet kinds. It occupies 2 bits on
// the wire, so values 0..2 are valid and 3 is reserved (InvalidPacketType).
type PacketType uint8

const (
	DataPacket PacketType = iota
	PingPacket
	AckPacket
	InvalidPacketType
)

func (t PacketType) String() string {
	switch t {
	case DataPacket:
		return "data"
	case PingPacket:
		return "ping"
	case AckPacket:
		return "ack"
	default:
		return "invalid"
	}
}

// WriteHeader writes the fixed 24-bit packet header: type, partial send
// sequence, the legacy data-packet flag, partial highest-ack, and the
// (always zero) padding.
func WriteHeader(w *BitWriter, typ PacketType, sendSeq, highestAck uint32) {
	w.WriteUint(uint32(typ), 2)
	w.WriteUint(sendSeq&0x1F, 5)
	w.WriteBool(true)
	w.WriteUint((sendSeq>>5)&((1<<(SequenceNumberBitSize-5))-1), SequenceNumberBitSize-5)
	w.WriteUint(highestAck&(AckSequenceNumberWindowSize-1), AckSequenceNumberBitSize)
	w.WriteUint(0, PacketHeaderPadBits)
}

// RawHeader is the header as decoded straight off the wire, before the
// partial sequence numbers are reconstructed against connection state.
type RawHeader struct {
	Type              PacketType
	PartialSendSeq    uint32 // SequenceNumberBitSize bits
	PartialHighestAck uint32 // AckSequenceNumberBitSize bits
}

// ReadHeader decodes the fixed header and validates the legacy flag and
// padding, but does not reconstruct full 32-bit sequence numbers — that
// requires connection state and is done by ReconstructSendSeq /
// ReconstructHighestAck.
func ReadHeader(r *BitReader) (RawHeader, error) {
	rawType, err := r.ReadUint(2)
	if err != nil {
		return RawHeader{}, err
	}
	low5, err := r.ReadUint(5)
	if err != nil {
		return RawHeader{}, err
	}
	dataFlag, err := r.ReadBool()
	if err != nil {
		return RawHeader{}, err
	}
	high, err := r.ReadUint(SequenceNumberBitSize - 5)
	if err != nil {
		return RawHeader{}, err
	}
	ack, err := r.ReadUint(AckSequenceNumberBitSize)
	if err != nil {
		return RawHeader{}, err
	}
	pad, err := r.ReadUint(PacketHeaderPadBits)
	if err != nil {
		return RawHeader{}, err
	}
	if pad != 0 {
		return RawHeader{}, fmt.Errorf("wire: non-zero header pad bits")
	}
	if !dataFlag {
		return RawHeader{}, fmt.Errorf("wire: missing data-packet flag")
	}
	if PacketType(rawType) >= InvalidPacketType {
		return RawHeader{}, fmt.Errorf("wire: invalid packet type %d", rawType)
	}
	return RawHeader{
		Type:              PacketType(rawType),
		PartialSendSeq:    low5 | (high << 5),
		PartialHighestAck: ack,
	}, nil
}

// ReconstructSendSeq extends a partial send sequence to 32 bits using the
// high bits of lastSeqRecvd as the reference, adding a full window's worth
// on wraparound.
func ReconstructSendSeq(partial, lastSeqRecvd uint32) uint32 {
	seq := partial | (lastSeqRecvd & sequenceNumberMask)
	if seq < lastSeqRecvd {
		seq += SequenceNumberWindowSize
	}
	return seq
}

// ReconstructHighestAck extends a partial highest-ack to 32 bits using the
// high bits of highestAckedSeq as the reference.
func ReconstructHighestAck(partial, highestAckedSeq uint32) uint32 {
	ack := partial | (highestAckedSeq & ackSequenceNumberMask)
	if ack < highestAckedSeq {
		ack += AckSequenceNumberWindowSize
	}
	return ack
}

// WriteAckMask writes ackByteCount bytes of ack bitmask, word 0 (least
// significant) first, little-endian within each word.
func WriteAckMask(w *BitWriter, mask [MaxAckMaskWords]uint32, ackByteCount int) {
	wordCount := (ackByteCount + 3) >> 2
	for i := 0; i < wordCount; i++ {
		bits := 32
		if i == wordCount-1 {
			bits = (ackByteCount - i*4) * 8
		}
		w.WriteUint(mask[i], bits)
	}
}

// ReadAckMask reads ackByteCount bytes of ack bitmask into a fixed-size
// word array, zero-filling words beyond what was actually sent.
func ReadAckMask(r *BitReader, ackByteCount int) ([MaxAckMaskWords]uint32, error) {
	var mask [MaxAckMaskWords]uint32
	wordCount := (ackByteCount + 3) >> 2
	for i := 0; i < wordCount; i++ {
		bits := 32
		if i == wordCount-1 {
			bits = (ackByteCount - i*4) * 8
		}
		v, err := r.ReadUint(bits)
		if err != nil {
			return mask, err
		}
		mask[i] = v
	}
	return mask, nil
}
