package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Region fields
	Addr   uint64 `json:"addr,omitempty"`   // Used for: Free, Read, Write (request), Alloc (response)
	Key    uint64 `json:"key,omitempty"`    // Used for: Free, Read, Write (request), Alloc (response)
	Offset uint64 `json:"offset,omitempty"` // Used for: Read, Write
	Size   uint64 `json:"size,omitempty"`   // Used for: Alloc, Read (request), Write (response)
	Value  []byte `json:"value,omitempty"`  // Used for: Write (request), Read (response)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Set on every successful response
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Stats (response)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewAllocRequest creates a new Alloc request
func NewAllocRequest(size uint64) *Message {
	return &Message{
		MsgType: MsgTMemAlloc,
		Size:    size,
	}
}

// NewAllocResponse creates a new Alloc response
func NewAllocResponse(addr, key uint64, err error) *Message {
	msg := &Message{
		MsgType: MsgTMemAlloc,
		Addr:    addr,
		Key:     key,
	}
	setErr(msg, err)
	return msg
}

// NewFreeRequest creates a new Free request
func NewFreeRequest(addr, key uint64) *Message {
	return &Message{
		MsgType: MsgTMemFree,
		Addr:    addr,
		Key:     key,
	}
}

// NewFreeResponse creates a new Free response
func NewFreeResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMemFree,
	}
	setErr(msg, err)
	return msg
}

// NewReadRequest creates a new Read request
func NewReadRequest(addr, key, offset, length uint64) *Message {
	return &Message{
		MsgType: MsgTMemRead,
		Addr:    addr,
		Key:     key,
		Offset:  offset,
		Size:    length,
	}
}

// NewReadResponse creates a new Read response
func NewReadResponse(value []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTMemRead,
		Value:   value,
	}
	setErr(msg, err)
	return msg
}

// NewWriteRequest creates a new Write request
func NewWriteRequest(addr, key, offset uint64, value []byte) *Message {
	return &Message{
		MsgType: MsgTMemWrite,
		Addr:    addr,
		Key:     key,
		Offset:  offset,
		Value:   value,
	}
}

// NewWriteResponse creates a new Write response, n is the number of bytes written
func NewWriteResponse(n uint64, err error) *Message {
	msg := &Message{
		MsgType: MsgTMemWrite,
		Size:    n,
	}
	setErr(msg, err)
	return msg
}

// NewStatsRequest creates a new Stats request
func NewStatsRequest() *Message {
	return &Message{
		MsgType: MsgTMemStats,
	}
}

// NewStatsResponse creates a new Stats response, meta carries the stats as JSON
func NewStatsResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTMemStats,
		Meta:    meta,
	}
	setErr(msg, err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

func setErr(msg *Message, err error) {
	if err != nil {
		msg.Err = err.Error()
		return
	}
	msg.Ok = true
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:  "success",
	MsgTError:    "error",
	MsgTMemAlloc: "alloc",
	MsgTMemFree:  "free",
	MsgTMemRead:  "read",
	MsgTMemWrite: "write",
	MsgTMemStats: "stats",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if s, ok := msgTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for mt, name := range msgTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Memory operations

	MsgTMemAlloc // Allocate a region
	MsgTMemFree  // Free a region
	MsgTMemRead  // Read bytes from a region
	MsgTMemWrite // Write bytes into a region
	MsgTMemStats // Report the state of a shard
)
