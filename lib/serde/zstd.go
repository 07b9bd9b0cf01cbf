package serde

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	flagRaw  byte = 0
	flagZstd byte = 1

	// payloads below this size are stored uncompressed
	minCompressSize = 128
)

// ZstdSerializer compresses the output of another serializer.
// The first byte of every encoding tells whether the rest is compressed,
// incompressible payloads are stored raw.
type ZstdSerializer[T any] struct {
	inner   ISerializer[T]
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Zstd wraps inner with zstd compression. level is 1 (fastest), 2 (default)
// or 3 (better compression), other values select the default.
func Zstd[T any](inner ISerializer[T], level int) (*ZstdSerializer[T], error) {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("serde: create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("serde: create zstd decoder: %w", err)
	}

	return &ZstdSerializer[T]{inner: inner, encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdSerializer[T]) encode(v T) ([]byte, error) {
	raw := make([]byte, z.inner.Size(v))
	if err := z.inner.Serialize(v, raw); err != nil {
		return nil, err
	}

	if len(raw) >= minCompressSize {
		compressed := z.encoder.EncodeAll(raw, make([]byte, 1, len(raw)))
		if len(compressed) < len(raw)+1 {
			compressed[0] = flagZstd
			return compressed, nil
		}
	}

	out := make([]byte, len(raw)+1)
	out[0] = flagRaw
	copy(out[1:], raw)
	return out, nil
}

// Size compresses v to measure it
func (z *ZstdSerializer[T]) Size(v T) uint64 {
	data, err := z.encode(v)
	if err != nil {
		return 0
	}
	return uint64(len(data))
}

func (z *ZstdSerializer[T]) Serialize(v T, dst []byte) error {
	data, err := z.encode(v)
	if err != nil {
		return err
	}
	if len(data) != len(dst) {
		return fmt.Errorf("%w: encoded %d bytes into a %d byte buffer", ErrInvalidLength, len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

func (z *ZstdSerializer[T]) Deserialize(src []byte) (T, error) {
	var zero T
	if len(src) == 0 {
		return zero, fmt.Errorf("%w: missing compression flag", ErrInvalidLength)
	}

	switch src[0] {
	case flagRaw:
		return z.inner.Deserialize(src[1:])
	case flagZstd:
		raw, err := z.decoder.DecodeAll(src[1:], nil)
		if err != nil {
			return zero, fmt.Errorf("serde: zstd decode: %w", err)
		}
		return z.inner.Deserialize(raw)
	default:
		return zero, fmt.Errorf("serde: unknown compression flag %d", src[0])
	}
}

// Close releases the encoder and decoder
func (z *ZstdSerializer[T]) Close() error {
	z.encoder.Close()
	z.decoder.Close()
	return nil
}
