package verbs

// --------------------------------------------------------------------------
// Interface Definitions for dependency injection
// --------------------------------------------------------------------------

// Opcode is the kind of a work request
type Opcode uint8

const (
	OpRead  Opcode = iota + 1 // copy remote memory into the local buffer
	OpWrite                   // copy the local buffer into remote memory
)

func (o Opcode) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// WorkRequest is a one-sided data transfer posted to a connection.
// For OpRead, Buf is filled with len(Buf) bytes; for OpWrite, Buf is sent.
// The buffer must not be touched until the matching completion arrived.
type WorkRequest struct {
	ID     uint64
	Op     Opcode
	Addr   uint64
	Key    uint64
	Offset uint64
	Buf    []byte
}

// Completion reports the outcome of the work request with the same ID
type Completion struct {
	ID    uint64
	Bytes int
	Err   error
}

// IConnection is an established remote-memory connection.
//
// The control path (Allocate, Free) is synchronous. The data path is
// asynchronous: Post queues a work request and its completion is delivered
// later on the Completions channel. The channel is closed when the
// connection goes away.
type IConnection interface {
	// Allocate registers size bytes of memory on the remote side
	Allocate(size uint64) (addr, key uint64, err error)
	// Free releases a region registered with Allocate
	Free(addr, key uint64) error
	// Post queues a work request. An error means the request was not queued and no completion will follow.
	Post(wr WorkRequest) error
	// Completions delivers one Completion per posted work request
	Completions() <-chan Completion
	// Close tears the connection down and closes the completion channel
	Close() error
}

// IConnector establishes connections. Address resolution and queue setup are
// hidden behind it.
type IConnector interface {
	// Establish connects to the memory server at address:port
	Establish(address string, port int) (IConnection, error)
	// GetName returns the name of the connector (e.g. "loopback")
	GetName() string
}
