package serde

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// encodeFunc produces the complete encoding of a value
type encodeFunc[T any] func(v T) ([]byte, error)

// encoded adapts codecs that cannot predict their output size. Size encodes
// the value once to measure it, Serialize encodes again. Both encodings are
// deterministic, so the second one fits the allocation made for the first.
type encoded[T any] struct {
	encode encodeFunc[T]
	decode func(src []byte) (T, error)
}

func (e encoded[T]) Size(v T) uint64 {
	data, err := e.encode(v)
	if err != nil {
		// Serialize reports the error
		return 0
	}
	return uint64(len(data))
}

func (e encoded[T]) Serialize(v T, dst []byte) error {
	data, err := e.encode(v)
	if err != nil {
		return err
	}
	if len(data) != len(dst) {
		return fmt.Errorf("%w: encoded %d bytes into a %d byte buffer", ErrInvalidLength, len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

func (e encoded[T]) Deserialize(src []byte) (T, error) {
	return e.decode(src)
}

// Gob stores values with encoding/gob. Every value is a self-contained gob
// stream including its type information.
func Gob[T any]() ISerializer[T] {
	return encoded[T]{
		encode: func(v T) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(v); err != nil {
				return nil, fmt.Errorf("serde: gob encode: %w", err)
			}
			return buf.Bytes(), nil
		},
		decode: func(src []byte) (T, error) {
			var v T
			if err := gob.NewDecoder(bytes.NewReader(src)).Decode(&v); err != nil {
				return v, fmt.Errorf("serde: gob decode: %w", err)
			}
			return v, nil
		},
	}
}

// JSON stores values as JSON documents
func JSON[T any]() ISerializer[T] {
	return encoded[T]{
		encode: func(v T) ([]byte, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("serde: json encode: %w", err)
			}
			return data, nil
		},
		decode: func(src []byte) (T, error) {
			var v T
			if err := json.Unmarshal(src, &v); err != nil {
				return v, fmt.Errorf("serde: json decode: %w", err)
			}
			return v, nil
		},
	}
}
