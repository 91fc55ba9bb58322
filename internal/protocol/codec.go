package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrFormat is returned for malformed messages and values that cannot be encoded
var ErrFormat = errors.New("protocol format error")

// IntSize and FloatSize are the encoded widths of integers and floats
const (
	IntSize   = 4
	FloatSize = 4
)

// EncodeInt encodes v as a 4-byte big-endian unsigned integer
func EncodeInt(v int) ([]byte, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: integer %d out of range", ErrFormat, v)
	}
	buf := make([]byte, IntSize)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf, nil
}

// DecodeInt decodes a 4-byte big-endian unsigned integer
func DecodeInt(b []byte) (int, error) {
	if len(b) != IntSize {
		return 0, fmt.Errorf("%w: integer needs %d bytes, got %d", ErrFormat, IntSize, len(b))
	}
	return int(binary.BigEndian.Uint32(b)), nil
}

// EncodeFloat encodes v as a 4-byte IEEE-754 single in network byte order
func EncodeFloat(v float64) ([]byte, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxFloat32 {
		return nil, fmt.Errorf("%w: float %v not representable", ErrFormat, v)
	}
	buf := make([]byte, FloatSize)
	binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v)))
	return buf, nil
}

// DecodeFloat decodes a 4-byte IEEE-754 single in network byte order
func DecodeFloat(b []byte) (float64, error) {
	if len(b) != FloatSize {
		return 0, fmt.Errorf("%w: float needs %d bytes, got %d", ErrFormat, FloatSize, len(b))
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
}
