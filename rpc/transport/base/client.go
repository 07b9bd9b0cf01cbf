package base

import (
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/lib/util"
	"github.com/ValentinKolb/dMem/rpc/common"
	"github.com/ValentinKolb/dMem/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// outgoing is a frame waiting in the send queue of a connection
type outgoing struct {
	shardID   uint64
	requestID uint64
	payload   []byte
}

// pendingRequest is a request waiting for its response
type pendingRequest struct {
	op    *async.Op[[]byte]
	timer *time.Timer // nil without timeout
}

// clientConnection is one multiplexed connection to an endpoint.
//
// Request goroutines push frames into queue, the writer goroutine writes them,
// the reader goroutine completes the pending ops. When the reader fails, every
// pending op fails with a ConnError and the connection is re-established in
// the background.
type clientConnection struct {
	endpoint string
	parent   *clientTransport

	connMu sync.RWMutex
	conn   net.Conn // nil while reconnecting

	pending *xsync.MapOf[uint64, pendingRequest]
	queue   *util.MPSCQueue[outgoing]
	stopCh  chan struct{}
	done    sync.WaitGroup
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin
	nextRequestID atomic.Uint64
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return remote.NewError(remote.RetCConnError, nil, "no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()
	t.config = config

	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	var lastErr error
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			c := &clientConnection{
				endpoint: endpoint,
				parent:   t,
				pending:  xsync.NewMapOf[uint64, pendingRequest](),
				queue:    util.NewMPSCQueue[outgoing](),
				stopCh:   make(chan struct{}),
			}

			conn, err := t.dial(endpoint)
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				c.queue.Close()
				lastErr = err
				continue
			}
			c.conn = conn

			c.done.Add(2)
			go c.writeRequests()
			go c.readResponses()

			connections = append(connections, c)
		}
	}

	if len(connections) == 0 {
		return remote.NewError(remote.RetCConnError, lastErr, "failed to connect to any endpoint")
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	return t.SendAsync(shardId, req).Wait()
}

func (t *clientTransport) SendAsync(shardId uint64, req []byte) *async.Op[[]byte] {
	op := async.New[[]byte]()

	c := t.getNextConnection()
	if c == nil {
		op.Fail(remote.NewError(remote.RetCConnError, nil, "no active connections available"))
		return op
	}

	requestID := t.nextRequestID.Add(1)
	p := pendingRequest{op: op}
	if t.config.TimeoutSecond > 0 {
		timeout := time.Duration(t.config.TimeoutSecond) * time.Second
		p.timer = time.AfterFunc(timeout, func() {
			if _, ok := c.pending.LoadAndDelete(requestID); ok {
				op.Fail(remote.NewError(remote.RetCIOError, nil, "request %d to %s timed out after %s", requestID, c.endpoint, timeout))
			}
		})
	}
	c.pending.Store(requestID, p)

	if !c.queue.Push(&outgoing{shardID: shardId, requestID: requestID, payload: req}) {
		c.fail(requestID, remote.NewError(remote.RetCConnError, nil, "connection to %s closed", c.endpoint))
	}
	return op
}

func (t *clientTransport) Close() error {
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dial connects to endpoint and applies the protocol-specific settings
func (t *clientTransport) dial(endpoint string) (net.Conn, error) {
	conn, err := t.connector.Connect(endpoint)
	if err != nil {
		return nil, err
	}
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// getNextConnection selects the next connection via Round Robin, skipping connections that are reconnecting
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	n := len(t.connections)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return t.connections[0]
	}

	start := t.nextConnIndex.Add(1)
	for i := 0; i < n; i++ {
		c := t.connections[(start+uint64(i))%uint64(n)]
		if c.isConnected() {
			return c
		}
	}
	// all reconnecting, the request fails on the chosen connection
	return t.connections[start%uint64(n)]
}

// closeConnections closes all active connections and waits for their goroutines
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		c.close()
	}
}

// close stops the connection. Pending requests fail with a ConnError.
func (c *clientConnection) close() {
	close(c.stopCh)
	c.queue.Close()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	c.done.Wait()
	c.failAll(remote.NewError(remote.RetCConnError, nil, "transport closed"))
}

func (c *clientConnection) isConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

func (c *clientConnection) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// fail fails a single pending request
func (c *clientConnection) fail(requestID uint64, err error) {
	if p, ok := c.pending.LoadAndDelete(requestID); ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.op.Fail(err)
	}
}

// failAll fails every pending request
func (c *clientConnection) failAll(err error) {
	c.pending.Range(func(id uint64, _ pendingRequest) bool {
		c.fail(id, err)
		return true
	})
}

// writeRequests drains the send queue onto the current connection
func (c *clientConnection) writeRequests() {
	defer c.done.Done()

	for out := range c.queue.Recv() {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			c.fail(out.requestID, remote.NewError(remote.RetCConnError, nil, "connection to %s lost, reconnecting", c.endpoint))
			continue
		}

		if c.parent.config.TimeoutSecond > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(time.Duration(c.parent.config.TimeoutSecond) * time.Second))
		}

		if err := writeFrame(conn, out.shardID, out.requestID, out.payload); err != nil {
			c.fail(out.requestID, remote.NewError(remote.RetCConnError, err, "failed to send request to %s", c.endpoint))
			// the reader notices the broken connection and reconnects
			_ = conn.Close()
		}
	}
}

// readResponses completes pending requests until the connection is closed.
// A broken connection is re-established with exponential backoff.
func (c *clientConnection) readResponses() {
	defer c.done.Done()

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		err := c.readLoop(conn)
		if c.stopped() {
			return
		}

		Logger.Warningf("Connection to %s broken: %v", c.endpoint, err)
		c.connMu.Lock()
		_ = c.conn.Close()
		c.conn = nil
		c.connMu.Unlock()
		c.failAll(remote.NewError(remote.RetCConnError, err, "connection to %s lost", c.endpoint))

		if !c.reconnect() {
			return
		}
	}
}

// readLoop reads frames from conn until an error occurs
func (c *clientConnection) readLoop(conn net.Conn) error {
	for {
		_, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			return err
		}

		p, found := c.pending.LoadAndDelete(requestID)
		if !found {
			// timed out or failed earlier
			Logger.Debugf("Received response for unknown request ID %d from %s", requestID, c.endpoint)
			continue
		}
		if p.timer != nil {
			p.timer.Stop()
		}
		p.op.Complete(data)
	}
}

// reconnect re-establishes the connection. It returns false if the connection was stopped meanwhile.
func (c *clientConnection) reconnect() bool {
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		// exponential backoff with a small random jitter (+-10%)
		jitter := time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64()))
		select {
		case <-c.stopCh:
			return false
		case <-time.After(jitter):
		}

		conn, err := c.parent.dial(c.endpoint)
		if err != nil {
			Logger.Debugf("Reconnect attempt %d to %s failed: %v", attempt, c.endpoint, err)
			backoff = min(2*backoff, maxBackoff)
			continue
		}

		c.connMu.Lock()
		if c.stopped() {
			c.connMu.Unlock()
			_ = conn.Close()
			return false
		}
		c.conn = conn
		c.connMu.Unlock()

		Logger.Infof("Reconnected to %s after %d attempts", c.endpoint, attempt)
		return true
	}
}
