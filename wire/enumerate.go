package wire

import (
	"errors"
	"strings"
)

// EnumerateAnswerSize is the fixed payload size of an enumerate event, per
// spec.md section 6: 8+8+1+3+3+2+1 bytes.
const EnumerateAnswerSize = 26

// ErrMalformedPacket is returned when a payload is shorter than the decoder
// requires. This is the fix for the Open Question in spec.md section 9: the
// original EnumerateAnswer decoder reads a 2-byte slice with
// u16::from_le_bytes after being handed a fixed 26-byte allocation without
// checking the slice length at the call site; here every field access is
// bounds-checked against the declared payload length before decoding.
var ErrMalformedPacket = errors.New("payload length does not match the expected packet size")

// EnumerationType classifies an EnumerateAnswer event.
type EnumerationType uint8

const (
	EnumerationAvailable EnumerationType = iota
	EnumerationConnected
	EnumerationDisconnected
	EnumerationUnknown
)

// EnumerationTypeFromByte maps the wire byte to an EnumerationType, mapping
// anything not in {0,1,2} to EnumerationUnknown.
func EnumerationTypeFromByte(b byte) EnumerationType {
	switch b {
	case 0:
		return EnumerationAvailable
	case 1:
		return EnumerationConnected
	case 2:
		return EnumerationDisconnected
	default:
		return EnumerationUnknown
	}
}

// EnumerateAnswer is the decoded payload of an enumerate event (uid=0,
// fn=253).
type EnumerateAnswer struct {
	UID              string
	ConnectedUID     string
	Position         byte
	HardwareVersion  [3]uint8
	FirmwareVersion  [3]uint8
	DeviceIdentifier uint16
	EnumerationType  EnumerationType
}

// DecodeEnumerateAnswer decodes a 26-byte enumerate event payload.
func DecodeEnumerateAnswer(b []byte) (EnumerateAnswer, error) {
	if len(b) != EnumerateAnswerSize {
		return EnumerateAnswer{}, ErrMalformedPacket
	}
	return EnumerateAnswer{
		UID:              strings.TrimRight(string(b[0:8]), "\x00"),
		ConnectedUID:     strings.TrimRight(string(b[8:16]), "\x00"),
		Position:         b[16],
		HardwareVersion:  [3]uint8{b[17], b[18], b[19]},
		FirmwareVersion:  [3]uint8{b[20], b[21], b[22]},
		DeviceIdentifier: Int[uint16](b[23:25]),
		EnumerationType:  EnumerationTypeFromByte(b[25]),
	}, nil
}
