package serde

import "errors"

// ISerializer converts values of type T to and from the byte layout stored in
// remote memory. The object store allocates exactly Size(v) bytes for the first
// put of an object, so Size must be the exact number of bytes Serialize writes.
type ISerializer[T any] interface {
	// Size returns the number of bytes Serialize needs for v
	Size(v T) uint64
	// Serialize writes v to dst. len(dst) is Size(v).
	Serialize(v T, dst []byte) error
	// Deserialize decodes a value from src. It must not keep a reference to src.
	Deserialize(src []byte) (T, error)
}

// ErrInvalidLength is returned when a buffer does not have the length a serializer expects
var ErrInvalidLength = errors.New("serde: invalid length")
