// Package wire implements the primitive little-endian byte (de)serialization
// the Tinkerforge wire protocol uses for function payloads. It is the Go
// equivalent of the generated bindings' byte_converter contract: fixed-width
// integers, booleans, ASCII characters, bit-packed boolean arrays, fixed-size
// arrays, and fixed-max-length strings. Per-device payload layouts (which
// functions take which types, in which order) remain out of scope — that is
// the generated code's job.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrParameterTooLong is returned when encoding a string longer than the
// buffer it must fit into.
var ErrParameterTooLong = errors.New("parameter exceeds the maximum allowed length")

// Integer is the set of fixed-width integer types the wire codec handles.
type Integer interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64
}

// Float is the set of fixed-width float types the wire codec handles.
type Float interface {
	~float32 | ~float64
}

// PutInt encodes an integer value into dst using little-endian byte order.
// dst must be exactly as long as the type's size.
func PutInt[T Integer](dst []byte, v T) {
	switch any(v).(type) {
	case int8, uint8:
		dst[0] = byte(v)
	case int16, uint16:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case int32, uint32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case int64, uint64:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	}
}

// Int decodes a little-endian integer of type T from src. src must be
// exactly as long as the type's size.
func Int[T Integer](src []byte) T {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return T(src[0])
	case int16, uint16:
		return T(binary.LittleEndian.Uint16(src))
	case int32, uint32:
		return T(binary.LittleEndian.Uint32(src))
	case int64, uint64:
		return T(binary.LittleEndian.Uint64(src))
	}
	return zero
}

// SizeOf returns the encoded size, in bytes, of an integer or float type.
func SizeOf[T Integer | Float]() int {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int64, uint64, float64:
		return 8
	}
	return 0
}

// PutFloat32 encodes f as its IEEE-754 bit pattern, little-endian.
func PutFloat32(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}

// Float32 decodes a little-endian IEEE-754 float32.
func Float32(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}

// PutFloat64 encodes f as its IEEE-754 bit pattern, little-endian.
func PutFloat64(dst []byte, f float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
}

// Float64 decodes a little-endian IEEE-754 float64.
func Float64(src []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

// PutBool encodes a boolean as a single byte: 0 for false, 1 for true.
func PutBool(dst []byte, b bool) {
	if b {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
}

// Bool decodes a single-byte boolean: zero is false, any other value is true.
func Bool(src []byte) bool {
	return src[0] != 0
}

// PutChar encodes an ASCII rune as a single byte.
func PutChar(dst []byte, r rune) {
	dst[0] = byte(r)
}

// Char decodes a single-byte ASCII rune.
func Char(src []byte) rune {
	return rune(src[0])
}

// BoolArraySize returns the number of bytes needed to bit-pack n booleans.
func BoolArraySize(n int) int {
	return (n + 7) / 8
}

// PutBoolArray bit-packs bs into dst, little-endian bit order within each
// byte. dst must be at least BoolArraySize(len(bs)) bytes.
func PutBoolArray(dst []byte, bs []bool) {
	for i := range dst {
		dst[i] = 0
	}
	for i, b := range bs {
		if b {
			dst[i/8] |= 1 << uint(i%8)
		}
	}
}

// BoolArray unpacks n booleans from their bit-packed representation in src.
func BoolArray(src []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = src[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}

// PutFixedString zero-pads s into a buffer of exactly maxLen bytes. It
// returns ErrParameterTooLong if s does not fit.
func PutFixedString(dst []byte, s string, maxLen int) error {
	if len(s) > maxLen {
		return ErrParameterTooLong
	}
	n := copy(dst, s)
	for i := n; i < maxLen; i++ {
		dst[i] = 0
	}
	return nil
}

// FixedString decodes a zero-padded, fixed-max-length string, trimming
// trailing NUL bytes. The caller supplies maxLen explicitly (see
// SPEC_FULL.md's Open Question decision on the source's ambiguous
// bytes_expected() for strings) rather than it being inferred from a Go
// type.
func FixedString(src []byte, maxLen int) string {
	end := maxLen
	for end > 0 && src[end-1] == 0 {
		end--
	}
	return string(src[:end])
}
