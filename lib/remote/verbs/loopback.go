package verbs

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/lib/remote"
)

// ErrClosed is returned by Post on a closed loopback connection
var ErrClosed = errors.New("verbs: connection closed")

// Loopback is an IConnector that connects to memory pools living in the same
// process. Pools are registered under an address and port, establishing a
// connection to an unregistered endpoint is refused.
//
// Work requests are executed asynchronously by one goroutine per request, so
// completions arrive out of order like on a real remote-memory connection.
type Loopback struct {
	pools sync.Map // endpoint -> *memstore.Pool

	// Posted counts all work requests posted through connections of this connector
	Posted atomic.Uint64
}

// NewLoopbackConnector creates a connector without registered pools
func NewLoopbackConnector() *Loopback {
	return &Loopback{}
}

// Register makes pool reachable under address:port
func (l *Loopback) Register(address string, port int, pool *memstore.Pool) {
	l.pools.Store(remote.Endpoint(address, port), pool)
}

// Unregister removes the pool registered under address:port.
// Existing connections keep working.
func (l *Loopback) Unregister(address string, port int) {
	l.pools.Delete(remote.Endpoint(address, port))
}

// --------------------------------------------------------------------------
// Interface Methods (docu see verbs.IConnector)
// --------------------------------------------------------------------------

func (l *Loopback) GetName() string {
	return "loopback"
}

func (l *Loopback) Establish(address string, port int) (IConnection, error) {
	endpoint := remote.Endpoint(address, port)
	v, ok := l.pools.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("connection refused: nothing registered at %s", endpoint)
	}
	return &loopbackConn{
		parent:      l,
		pool:        v.(*memstore.Pool),
		completions: make(chan Completion, 64),
	}, nil
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// loopbackConn executes work requests directly against a memstore.Pool
type loopbackConn struct {
	parent      *Loopback
	pool        *memstore.Pool
	completions chan Completion
	inflight    sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

func (c *loopbackConn) Allocate(size uint64) (uint64, uint64, error) {
	if c.isClosed() {
		return 0, 0, ErrClosed
	}
	return c.pool.Allocate(size)
}

func (c *loopbackConn) Free(addr, key uint64) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.pool.Free(addr, key)
}

func (c *loopbackConn) Post(wr WorkRequest) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if wr.Op != OpRead && wr.Op != OpWrite {
		return fmt.Errorf("verbs: invalid opcode %d", wr.Op)
	}

	c.parent.Posted.Add(1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.completions <- c.execute(wr)
	}()
	return nil
}

func (c *loopbackConn) Completions() <-chan Completion {
	return c.completions
}

func (c *loopbackConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// no new posts can start, let the running ones deliver their completions
	c.inflight.Wait()
	close(c.completions)
	return nil
}

// execute performs a work request against the pool
func (c *loopbackConn) execute(wr WorkRequest) Completion {
	var err error
	switch wr.Op {
	case OpRead:
		err = c.pool.ReadInto(wr.Addr, wr.Key, wr.Offset, wr.Buf)
	case OpWrite:
		err = c.pool.Write(wr.Addr, wr.Key, wr.Offset, wr.Buf)
	}
	if err != nil {
		return Completion{ID: wr.ID, Err: err}
	}
	return Completion{ID: wr.ID, Bytes: len(wr.Buf)}
}

func (c *loopbackConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
