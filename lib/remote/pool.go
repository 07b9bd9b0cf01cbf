package remote

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("remote")

// TransportFactory creates an unconnected transport for one pool member
type TransportFactory func() ITransport

// poolMember is one memory server of a Pool
type poolMember struct {
	endpoint  string
	transport ITransport
}

// Pool spreads allocations over several memory servers.
//
// Every Connect adds one member (connecting twice to the same endpoint is a
// no-op). Allocations are assigned round-robin and the member index is stored
// in Handle.Node, all other calls are routed by that index.
type Pool struct {
	factory TransportFactory
	members []poolMember
	mu      sync.RWMutex
	next    atomic.Uint64
}

// NewPool creates an empty pool. factory is called once per member.
func NewPool(factory TransportFactory) *Pool {
	return &Pool{factory: factory}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see remote.ITransport)
// --------------------------------------------------------------------------

func (p *Pool) Connect(endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.members {
		if m.endpoint == endpoint {
			return nil
		}
	}

	t := p.factory()
	if err := t.Connect(endpoint); err != nil {
		return AsError(RetCConnError, err, "failed to connect to %s", endpoint)
	}

	p.members = append(p.members, poolMember{endpoint: endpoint, transport: t})
	Logger.Infof("Added %s as pool member %d", endpoint, len(p.members)-1)
	return nil
}

func (p *Pool) Allocate(size uint64) (Handle, error) {
	p.mu.RLock()
	n := len(p.members)
	if n == 0 {
		p.mu.RUnlock()
		return Handle{}, NewError(RetCConnError, nil, "pool has no members")
	}
	idx := int((p.next.Add(1) - 1) % uint64(n))
	m := p.members[idx]
	p.mu.RUnlock()

	h, err := m.transport.Allocate(size)
	if err != nil {
		return Handle{}, err
	}
	h.Node = uint32(idx)
	return h, nil
}

func (p *Pool) Free(h Handle) error {
	t, err := p.member(h)
	if err != nil {
		return err
	}
	return t.Free(h)
}

func (p *Pool) WriteSync(h Handle, offset uint64, data []byte) error {
	t, err := p.member(h)
	if err != nil {
		return err
	}
	return t.WriteSync(h, offset, data)
}

func (p *Pool) ReadSync(h Handle, offset, length uint64) ([]byte, error) {
	t, err := p.member(h)
	if err != nil {
		return nil, err
	}
	return t.ReadSync(h, offset, length)
}

func (p *Pool) WriteAsync(h Handle, offset uint64, data []byte) *async.Op[int] {
	t, err := p.member(h)
	if err != nil {
		return async.Failed[int](err)
	}
	return t.WriteAsync(h, offset, data)
}

func (p *Pool) ReadAsync(h Handle, offset, length uint64) *async.Op[[]byte] {
	t, err := p.member(h)
	if err != nil {
		return async.Failed[[]byte](err)
	}
	return t.ReadAsync(h, offset, length)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, m := range p.members {
		if err := m.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.members = nil
	return firstErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// Len returns the number of members
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

// Endpoints returns the endpoints of all members in member order
func (p *Pool) Endpoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	eps := make([]string, len(p.members))
	for i, m := range p.members {
		eps[i] = m.endpoint
	}
	return eps
}

// member returns the transport owning h
func (p *Pool) member(h Handle) (ITransport, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(h.Node) >= len(p.members) {
		return nil, NewError(RetCConnError, nil, "no pool member %d for handle %s", h.Node, h)
	}
	return p.members[h.Node].transport, nil
}
