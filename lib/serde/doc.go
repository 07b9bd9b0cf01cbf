/*
Package serde provides the value serializers of the object store.

A serializer knows the exact encoded size of a value before encoding it, the
store uses this size for the remote allocation:

	s := serde.Float64Vector(128)
	buf := make([]byte, s.Size(v))
	err := s.Serialize(v, buf)

Available serializers:

  - Bytes, String: raw payloads, variable size
  - Uint64, Float64Vector: fixed size little endian encodings
  - Gob, JSON: any Go type, variable size
  - Zstd: wraps another serializer and compresses its output
*/
package serde
