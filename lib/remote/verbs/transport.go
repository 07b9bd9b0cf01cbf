package verbs

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("remote/verbs")

// pendingRequest is an in-flight work request waiting for its completion
type pendingRequest struct {
	op    Opcode
	buf   []byte
	read  *async.Op[[]byte]
	write *async.Op[int]
}

func (p pendingRequest) fail(err error) {
	if p.op == OpRead {
		p.read.Fail(err)
	} else {
		p.write.Fail(err)
	}
}

// session is one established connection with its in-flight requests
type session struct {
	conn     IConnection
	endpoint string
	pending  *xsync.MapOf[uint64, pendingRequest]
	drained  chan struct{}
	lost     atomic.Bool // completion channel closed
}

// transport implements remote.ITransport on top of an IConnection
type transport struct {
	connector IConnector
	session   *session
	connMu    sync.RWMutex
	nextID    atomic.Uint64
}

// NewTransport creates an unconnected zero-copy transport using connector
func NewTransport(connector IConnector) remote.ITransport {
	return &transport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see remote.ITransport)
// --------------------------------------------------------------------------

func (t *transport) Connect(endpoint string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.session != nil {
		if t.session.endpoint == endpoint {
			return nil
		}
		return remote.NewError(remote.RetCConnError, nil, "already connected to %s", t.session.endpoint)
	}

	address, port, err := remote.SplitEndpoint(endpoint)
	if err != nil {
		return err
	}

	conn, err := t.connector.Establish(address, port)
	if err != nil {
		return remote.AsError(remote.RetCConnError, err, "failed to establish %s connection to %s", t.connector.GetName(), endpoint)
	}

	t.session = &session{
		conn:     conn,
		endpoint: endpoint,
		pending:  xsync.NewMapOf[uint64, pendingRequest](),
		drained:  make(chan struct{}),
	}
	go t.session.drainCompletions()

	Logger.Infof("Connected to %s using %s connector", endpoint, t.connector.GetName())
	return nil
}

func (t *transport) Allocate(size uint64) (remote.Handle, error) {
	conn, err := t.connection()
	if err != nil {
		return remote.Handle{}, err
	}
	addr, key, err := conn.Allocate(size)
	if err != nil {
		return remote.Handle{}, remote.AsError(remote.RetCAllocError, err, "allocation of %d bytes rejected", size)
	}
	return remote.Handle{Addr: addr, Key: key}, nil
}

func (t *transport) Free(h remote.Handle) error {
	conn, err := t.connection()
	if err != nil {
		return err
	}
	if err := conn.Free(h.Addr, h.Key); err != nil {
		return remote.AsError(remote.RetCIOError, err, "free of %s failed", h)
	}
	return nil
}

func (t *transport) WriteSync(h remote.Handle, offset uint64, data []byte) error {
	_, err := t.WriteAsync(h, offset, data).Wait()
	return err
}

func (t *transport) ReadSync(h remote.Handle, offset, length uint64) ([]byte, error) {
	return t.ReadAsync(h, offset, length).Wait()
}

func (t *transport) WriteAsync(h remote.Handle, offset uint64, data []byte) *async.Op[int] {
	op := async.New[int]()
	t.post(pendingRequest{op: OpWrite, buf: data, write: op}, h, offset)
	return op
}

func (t *transport) ReadAsync(h remote.Handle, offset, length uint64) *async.Op[[]byte] {
	op := async.New[[]byte]()
	t.post(pendingRequest{op: OpRead, buf: make([]byte, length), read: op}, h, offset)
	return op
}

func (t *transport) Close() error {
	t.connMu.Lock()
	s := t.session
	t.session = nil
	t.connMu.Unlock()

	if s == nil {
		return nil
	}

	err := s.conn.Close()

	// the drain goroutine fails everything still pending once the channel is closed
	<-s.drained
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// connection returns the current connection or a connection error
func (t *transport) connection() (IConnection, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.session == nil {
		return nil, remote.NewError(remote.RetCConnError, nil, "transport not connected")
	}
	return t.session.conn, nil
}

// post registers the request and hands it to the connection
func (t *transport) post(p pendingRequest, h remote.Handle, offset uint64) {
	// hold the read lock so Close cannot slip in between Store and Post
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	s := t.session
	if s == nil {
		p.fail(remote.NewError(remote.RetCConnError, nil, "transport not connected"))
		return
	}
	if s.lost.Load() {
		p.fail(remote.NewError(remote.RetCConnError, nil, "connection to %s lost", s.endpoint))
		return
	}

	id := t.nextID.Add(1)
	s.pending.Store(id, p)

	wr := WorkRequest{ID: id, Op: p.op, Addr: h.Addr, Key: h.Key, Offset: offset, Buf: p.buf}
	if err := s.conn.Post(wr); err != nil {
		if _, ok := s.pending.LoadAndDelete(id); ok {
			p.fail(remote.AsError(remote.RetCIOError, err, "failed to post %s request", p.op))
		}
	}
}

// drainCompletions completes pending requests until the completion channel is closed
func (s *session) drainCompletions() {
	defer close(s.drained)

	for c := range s.conn.Completions() {
		p, ok := s.pending.LoadAndDelete(c.ID)
		if !ok {
			Logger.Warningf("Received completion for unknown work request %d", c.ID)
			continue
		}

		if c.Err != nil {
			p.fail(remote.AsError(remote.RetCIOError, c.Err, "%s request failed", p.op))
			continue
		}

		if p.op == OpRead {
			p.read.Complete(p.buf[:c.Bytes])
		} else {
			p.write.Complete(c.Bytes)
		}
	}

	// connection is gone, nothing pending will ever complete
	s.lost.Store(true)
	dropped := 0
	s.pending.Range(func(id uint64, p pendingRequest) bool {
		if _, ok := s.pending.LoadAndDelete(id); ok {
			p.fail(remote.NewError(remote.RetCConnError, nil, "connection closed"))
			dropped++
		}
		return true
	})
	if dropped > 0 {
		Logger.Warningf("Connection closed with %d pending work requests", dropped)
	}
}
