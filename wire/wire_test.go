package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutInt[uint32](buf, 0xcafef00d)
	require.Equal(t, uint32(0xcafef00d), Int[uint32](buf))

	buf2 := make([]byte, 2)
	PutInt[int16](buf2, -1234)
	require.Equal(t, int16(-1234), Int[int16](buf2))
}

func TestFloatRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutFloat32(buf, 3.5)
	require.Equal(t, float32(3.5), Float32(buf))

	buf64 := make([]byte, 8)
	PutFloat64(buf64, -2.25)
	require.Equal(t, -2.25, Float64(buf64))
}

func TestBoolArrayRoundTrip(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, true, true}
	buf := make([]byte, BoolArraySize(len(bits)))
	PutBoolArray(buf, bits)
	require.Equal(t, bits, BoolArray(buf, len(bits)))
}

func TestFixedStringRoundTrip(t *testing.T) {
	buf := make([]byte, 10)
	require.NoError(t, PutFixedString(buf, "hello", 10))
	require.Equal(t, "hello", FixedString(buf, 10))
}

func TestFixedStringTooLong(t *testing.T) {
	buf := make([]byte, 4)
	err := PutFixedString(buf, "toolong", 4)
	require.ErrorIs(t, err, ErrParameterTooLong)
}

func TestDecodeEnumerateAnswer(t *testing.T) {
	payload := make([]byte, EnumerateAnswerSize)
	copy(payload[0:8], "abc")
	copy(payload[8:16], "xyz")
	payload[16] = 'a'
	payload[17], payload[18], payload[19] = 2, 0, 3
	payload[20], payload[21], payload[22] = 1, 0, 0
	PutInt[uint16](payload[23:25], 17)
	payload[25] = 1

	ans, err := DecodeEnumerateAnswer(payload)
	require.NoError(t, err)
	require.Equal(t, "abc", ans.UID)
	require.Equal(t, "xyz", ans.ConnectedUID)
	require.Equal(t, byte('a'), ans.Position)
	require.Equal(t, [3]uint8{2, 0, 3}, ans.HardwareVersion)
	require.Equal(t, [3]uint8{1, 0, 0}, ans.FirmwareVersion)
	require.Equal(t, uint16(17), ans.DeviceIdentifier)
	require.Equal(t, EnumerationConnected, ans.EnumerationType)
}

func TestDecodeEnumerateAnswerMalformed(t *testing.T) {
	_, err := DecodeEnumerateAnswer(make([]byte, 10))
	require.ErrorIs(t, err, ErrMalformedPacket)
}
