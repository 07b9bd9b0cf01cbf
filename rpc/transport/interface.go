package transport

import (
	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests.
// It is called by the server transport for every received request, possibly
// from several goroutines at once, and returns the response to send back.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the listening side of the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler all requests are routed to.
	// It must be called before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen accepts connections and serves requests. It blocks until Close is called
	// and returns nil in that case.
	Listen(config common.ServerConfig) error
	// Close stops accepting connections and closes all open ones
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport.
//
// Errors are *remote.Error values: a ConnError when no connection is available
// or the connection carrying a request broke, an IOError when a request timed out.
// Requests are never retried.
type IRPCClientTransport interface {
	// Connect opens the connections described by config
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and blocks until the response arrived
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// SendAsync sends a request and returns immediately. The op completes with the response.
	SendAsync(shardId uint64, req []byte) *async.Op[[]byte]
	// Close closes all connections. Pending requests fail with a ConnError.
	Close() error
}
