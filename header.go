package ipconnection

import "encoding/binary"

// HeaderSize is the fixed size of a packet header, in bytes.
const HeaderSize = 8

// MaxPacketSize is the largest frame the protocol allows: header plus the
// 64-byte payload cap plus 8 bytes of slack the daemon is permitted to use.
const MaxPacketSize = HeaderSize + 64 + 8

// PacketHeader is the 8-byte, little-endian frame header every Tinkerforge
// packet starts with.
type PacketHeader struct {
	UID              uint32
	Length           uint8
	FunctionID       uint8
	SequenceNumber   uint8
	ResponseExpected bool
	ErrorCode        uint8
}

// HeaderWithPayload builds the header for an outgoing request of the given
// payload length.
func HeaderWithPayload(uid uint32, functionID uint8, sequenceNumber uint8, responseExpected bool, payloadLen uint8) PacketHeader {
	return PacketHeader{
		UID:              uid,
		Length:           HeaderSize + payloadLen,
		FunctionID:       functionID,
		SequenceNumber:   sequenceNumber,
		ResponseExpected: responseExpected,
	}
}

// EncodeHeader renders a header into its 8-byte little-endian wire form.
func EncodeHeader(h PacketHeader) [HeaderSize]byte {
	var out [HeaderSize]byte
	binary.LittleEndian.PutUint32(out[0:4], h.UID)
	out[4] = h.Length
	out[5] = h.FunctionID
	out[6] = h.SequenceNumber<<4 | boolToByte(h.ResponseExpected)<<3
	out[7] = h.ErrorCode << 6
	return out
}

// DecodeHeader extracts a PacketHeader from any 8 bytes. It performs no
// validation beyond field extraction; checking Length against the bounds
// the protocol allows is the caller's job.
func DecodeHeader(b []byte) PacketHeader {
	_ = b[7] // bounds check hint for the compiler, mirrors spec.md's "accept any 8 bytes"
	return PacketHeader{
		UID:              binary.LittleEndian.Uint32(b[0:4]),
		Length:           b[4],
		FunctionID:       b[5],
		SequenceNumber:   (b[6] & 0xf0) >> 4,
		ResponseExpected: b[6]&0x08 != 0,
		ErrorCode:        (b[7] & 0xc0) >> 6,
	}
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
