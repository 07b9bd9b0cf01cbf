package serializer

import "github.com/ValentinKolb/dMem/rpc/common"

// IRPCSerializer is the interface for all Message Serializers.
// Client and server must use the same implementation.
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into msg.
	// Byte fields of msg may be reused, data is not retained.
	Deserialize(b []byte, msg *common.Message) error
}
