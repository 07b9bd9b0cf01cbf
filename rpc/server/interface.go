package server

import (
	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters.
// It turns a request into calls on the memory pool of a shard.
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// Errors are reported in the Err field of the response.
	Handle(req *common.Message, pool *memstore.Pool) (resp *common.Message)
}
