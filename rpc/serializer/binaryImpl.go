package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dMem/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: [MsgType:1][flags:1] followed by the fields whose flag is set, in flag order.
// Integers are 8 byte big endian, byte fields carry a 4 byte length prefix.
// Ok has no payload, the flag is the value.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasAddr   byte = 1 << 0
	hasKey    byte = 1 << 1
	hasOffset byte = 1 << 2
	hasSize   byte = 1 << 3
	hasValue  byte = 1 << 4
	hasOk     byte = 1 << 5
	hasErr    byte = 1 << 6
	hasMeta   byte = 1 << 7
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte = 0
	pos := 2 // Start after MsgType and flags

	putUint := func(flag byte, v uint64) {
		if v == 0 {
			return
		}
		flags |= flag
		binary.BigEndian.PutUint64(result[pos:pos+8], v)
		pos += 8
	}
	putBytes := func(flag byte, v []byte) {
		flags |= flag
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(v)))
		pos += 4
		pos += copy(result[pos:], v)
	}

	putUint(hasAddr, msg.Addr)
	putUint(hasKey, msg.Key)
	putUint(hasOffset, msg.Offset)
	putUint(hasSize, msg.Size)
	if msg.Value != nil {
		putBytes(hasValue, msg.Value)
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		putBytes(hasErr, []byte(msg.Err))
	}
	if msg.Meta != nil {
		putBytes(hasMeta, msg.Meta)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := data[1]
	pos := 2

	readUint := func(flag byte, name string) (uint64, error) {
		if flags&flag == 0 {
			return 0, nil
		}
		if pos+8 > len(data) {
			return 0, fmt.Errorf("data too short for %s", name)
		}
		v := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}
	// readBytes returns a sub slice of data, callers copy if they keep it
	readBytes := func(flag byte, name string) ([]byte, error) {
		if flags&flag == 0 {
			return nil, nil
		}
		if pos+4 > len(data) {
			return nil, fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if n < 0 || pos+n > len(data) {
			return nil, fmt.Errorf("data too short for %s data", name)
		}
		v := data[pos : pos+n]
		pos += n
		return v, nil
	}

	var err error
	if msg.Addr, err = readUint(hasAddr, "Addr"); err != nil {
		return err
	}
	if msg.Key, err = readUint(hasKey, "Key"); err != nil {
		return err
	}
	if msg.Offset, err = readUint(hasOffset, "Offset"); err != nil {
		return err
	}
	if msg.Size, err = readUint(hasSize, "Size"); err != nil {
		return err
	}

	value, err := readBytes(hasValue, "value")
	if err != nil {
		return err
	}
	msg.Value = reuse(msg.Value, value, flags&hasValue != 0)

	msg.Ok = flags&hasOk != 0

	errBytes, err := readBytes(hasErr, "error")
	if err != nil {
		return err
	}
	msg.Err = string(errBytes)

	meta, err := readBytes(hasMeta, "meta")
	if err != nil {
		return err
	}
	msg.Meta = reuse(msg.Meta, meta, flags&hasMeta != 0)

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	for _, v := range [...]uint64{msg.Addr, msg.Key, msg.Offset, msg.Size} {
		if v != 0 {
			size += 8
		}
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value) // 4 bytes for length + value bytes
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

// reuse copies src into dst, growing dst only if needed.
// A present but empty field decodes to an empty, non nil slice.
func reuse(dst, src []byte, present bool) []byte {
	if !present {
		return nil
	}
	if dst == nil || cap(dst) < len(src) {
		dst = make([]byte, len(src))
	} else {
		dst = dst[:len(src)]
	}
	copy(dst, src)
	return dst
}
