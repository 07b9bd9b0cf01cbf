package serde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Raw
// --------------------------------------------------------------------------

type bytesSerializer struct{}

// Bytes stores byte slices as they are
func Bytes() ISerializer[[]byte] { return bytesSerializer{} }

func (bytesSerializer) Size(v []byte) uint64 { return uint64(len(v)) }

func (bytesSerializer) Serialize(v []byte, dst []byte) error {
	if len(dst) != len(v) {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidLength, len(v), len(dst))
	}
	copy(dst, v)
	return nil
}

func (bytesSerializer) Deserialize(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

type stringSerializer struct{}

// String stores strings as their UTF-8 bytes
func String() ISerializer[string] { return stringSerializer{} }

func (stringSerializer) Size(v string) uint64 { return uint64(len(v)) }

func (stringSerializer) Serialize(v string, dst []byte) error {
	if len(dst) != len(v) {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidLength, len(v), len(dst))
	}
	copy(dst, v)
	return nil
}

func (stringSerializer) Deserialize(src []byte) (string, error) {
	return string(src), nil
}

// --------------------------------------------------------------------------
// Fixed size
// --------------------------------------------------------------------------

type uint64Serializer struct{}

// Uint64 stores a uint64 in 8 bytes little endian
func Uint64() ISerializer[uint64] { return uint64Serializer{} }

func (uint64Serializer) Size(uint64) uint64 { return 8 }

func (uint64Serializer) Serialize(v uint64, dst []byte) error {
	if len(dst) != 8 {
		return fmt.Errorf("%w: need 8 bytes, got %d", ErrInvalidLength, len(dst))
	}
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}

func (uint64Serializer) Deserialize(src []byte) (uint64, error) {
	if len(src) != 8 {
		return 0, fmt.Errorf("%w: expected 8 bytes, got %d", ErrInvalidLength, len(src))
	}
	return binary.LittleEndian.Uint64(src), nil
}

type float64VectorSerializer struct {
	n int
}

// Float64Vector stores vectors of exactly n float64 values (8n bytes).
// Serializing a vector of another length fails, as does decoding a buffer of
// another size.
func Float64Vector(n int) ISerializer[[]float64] {
	return float64VectorSerializer{n: n}
}

func (s float64VectorSerializer) Size([]float64) uint64 { return uint64(s.n) * 8 }

func (s float64VectorSerializer) Serialize(v []float64, dst []byte) error {
	if len(v) != s.n {
		return fmt.Errorf("%w: vector has %d elements, expected %d", ErrInvalidLength, len(v), s.n)
	}
	if len(dst) != s.n*8 {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidLength, s.n*8, len(dst))
	}
	for i, f := range v {
		binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(f))
	}
	return nil
}

func (s float64VectorSerializer) Deserialize(src []byte) ([]float64, error) {
	if len(src) != s.n*8 {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidLength, s.n*8, len(src))
	}
	out := make([]float64, s.n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
	}
	return out, nil
}
