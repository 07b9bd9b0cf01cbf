package remote

import (
	"fmt"
	"net"
	"strconv"

	"github.com/ValentinKolb/dMem/lib/async"
)

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle identifies a region of remote memory returned by ITransport.Allocate.
// It is opaque to callers and stays valid until the region is freed.
type Handle struct {
	// Node is the index of the pool member owning the region (0 for single endpoint transports)
	Node uint32 `json:"node"`
	// Addr is the address of the region on its memory server
	Addr uint64 `json:"addr"`
	// Key is the access key that must accompany every request for the region
	Key uint64 `json:"key"`
}

func (h Handle) String() string {
	return fmt.Sprintf("%d/0x%x#%x", h.Node, h.Addr, h.Key)
}

// ParseHandle parses the output of Handle.String
func ParseHandle(s string) (Handle, error) {
	var h Handle
	n, err := fmt.Sscanf(s, "%d/0x%x#%x", &h.Node, &h.Addr, &h.Key)
	if err != nil || n != 3 {
		return Handle{}, fmt.Errorf("invalid handle %q (expected NODE/0xADDR#KEY)", s)
	}
	return h, nil
}

// --------------------------------------------------------------------------
// Transport Interface
// --------------------------------------------------------------------------

// ITransport moves bytes to and from regions of network-attached memory.
//
// Two backends implement it: a zero-copy backend posting work requests to a
// remote-memory connection (package verbs) and a stream backend that frames
// requests over tcp, unix or http connections (package rpc/client).
//
// Every error returned by an implementation is a *Error, so callers can match
// with errors.Is(err, ErrConn), ErrAlloc or ErrIO. No method retries.
type ITransport interface {
	// Connect connects the transport to a memory server.
	// Connecting again to the same endpoint is a no-op.
	Connect(endpoint string) error
	// Allocate requests size bytes of remote memory
	Allocate(size uint64) (Handle, error)
	// Free releases a region. The handle must not be used afterward.
	Free(h Handle) error
	// WriteSync writes data at offset into the region and blocks until it is visible to reads
	WriteSync(h Handle, offset uint64, data []byte) error
	// ReadSync reads length bytes at offset from the region
	ReadSync(h Handle, offset, length uint64) ([]byte, error)
	// WriteAsync is WriteSync without blocking. The op yields the number of bytes written.
	WriteAsync(h Handle, offset uint64, data []byte) *async.Op[int]
	// ReadAsync is ReadSync without blocking
	ReadAsync(h Handle, offset, length uint64) *async.Op[[]byte]
	// Close releases the connection. Pending operations fail with a connection error.
	Close() error
}

// Endpoint joins an address and a port into an endpoint string usable with Connect
func Endpoint(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// SplitEndpoint is the inverse of Endpoint
func SplitEndpoint(endpoint string) (address string, port int, err error) {
	address, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, NewError(RetCConnError, err, "invalid endpoint %q", endpoint)
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, NewError(RetCConnError, err, "invalid port in endpoint %q", endpoint)
	}
	return address, port, nil
}
