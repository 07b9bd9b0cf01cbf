package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dMem/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// Region fields are plain numbers, the Value of reads and writes and the Meta
// of stats responses are base64 strings. Mostly useful for debugging the
// memory protocol, e.g. with the http transport.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// reset, fields missing from the encoding (omitempty) must not keep old values
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}
