package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/dMem/rpc/common"
)

// gobHeaderSize covers the type description gob sends ahead of every Message
const gobHeaderSize = 256

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every message carries its own type description, so the region fields
// (Addr, Key, Offset, Size) cost more than with the binary serializer. The
// Value payload of reads and writes is copied once into the encoding.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IRPCSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(gobHeaderSize + len(msg.Value) + len(msg.Meta) + len(msg.Err))
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob skips zero fields, reset so they do not keep old values
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}
