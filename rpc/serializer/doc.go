// Package serializer converts RPC messages (common.Message) to bytes and back.
//
// Implementations:
//
//   - Binary: custom format with a flag byte marking which fields are present.
//     Region fields are fixed 8 byte integers, so read and write requests have a
//     constant header of at most 34 bytes plus the payload. Recommended.
//
//   - JSON: human readable, useful for debugging with the http transport.
//
//   - GOB: Go's gob encoding. Works, but is slower and larger than Binary for
//     the small messages of the memory protocol.
//
// All implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewReadRequest(addr, key, 0, 64))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(received, &resp)
package serializer
