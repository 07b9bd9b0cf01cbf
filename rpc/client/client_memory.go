package client

import (
	"sync"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/rpc/common"
	"github.com/ValentinKolb/dMem/rpc/serializer"
	"github.com/ValentinKolb/dMem/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// NewRPCMemory creates the stream backend of remote.ITransport.
// All requests go to the memory pool with shardId on the server. The
// transport is connected on Connect, config supplies timeouts and socket
// options (its endpoints are ignored).
func NewRPCMemory(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *RPCMemory {
	return &RPCMemory{
		shardId:    shardId,
		config:     config,
		transport:  transport,
		serializer: serializer,
	}
}

// NewRPCMemoryFactory returns a factory for remote.Pool creating one RPCMemory with its own transport per member
func NewRPCMemoryFactory(
	shardId uint64,
	config common.ClientConfig,
	newTransport func() transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) remote.TransportFactory {
	return func() remote.ITransport {
		return NewRPCMemory(shardId, config, newTransport(), serializer)
	}
}

// RPCMemory talks to a memory server through an RPC transport
type RPCMemory struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	mu       sync.Mutex
	endpoint string // empty while not connected
}

// --------------------------------------------------------------------------
// Interface Methods (docu see remote.ITransport)
// --------------------------------------------------------------------------

func (m *RPCMemory) Connect(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.endpoint != "" {
		if m.endpoint == endpoint {
			return nil
		}
		return remote.NewError(remote.RetCConnError, nil, "already connected to %s", m.endpoint)
	}

	config := m.config
	config.Transport.Endpoints = []string{endpoint}
	if err := m.transport.Connect(config); err != nil {
		return remote.AsError(remote.RetCConnError, err, "failed to connect to %s", endpoint)
	}

	m.endpoint = endpoint
	Logger.Infof("Connected to memory server %s (shard %d)", endpoint, m.shardId)
	return nil
}

func (m *RPCMemory) Allocate(size uint64) (remote.Handle, error) {
	resp, err := m.invoke(common.NewAllocRequest(size), remote.RetCAllocError)
	if err != nil {
		return remote.Handle{}, err
	}
	return remote.Handle{Addr: resp.Addr, Key: resp.Key}, nil
}

func (m *RPCMemory) Free(h remote.Handle) error {
	_, err := m.invoke(common.NewFreeRequest(h.Addr, h.Key), remote.RetCIOError)
	return err
}

func (m *RPCMemory) WriteSync(h remote.Handle, offset uint64, data []byte) error {
	_, err := m.WriteAsync(h, offset, data).Wait()
	return err
}

func (m *RPCMemory) ReadSync(h remote.Handle, offset, length uint64) ([]byte, error) {
	return m.ReadAsync(h, offset, length).Wait()
}

func (m *RPCMemory) WriteAsync(h remote.Handle, offset uint64, data []byte) *async.Op[int] {
	op := m.invokeAsync(common.NewWriteRequest(h.Addr, h.Key, offset, data), remote.RetCIOError)
	return async.Then(op, func(resp *common.Message) (int, error) {
		return int(resp.Size), nil
	})
}

func (m *RPCMemory) ReadAsync(h remote.Handle, offset, length uint64) *async.Op[[]byte] {
	op := m.invokeAsync(common.NewReadRequest(h.Addr, h.Key, offset, length), remote.RetCIOError)
	return async.Then(op, func(resp *common.Message) ([]byte, error) {
		if uint64(len(resp.Value)) != length {
			return nil, remote.NewError(remote.RetCIOError, nil, "short read: got %d of %d bytes", len(resp.Value), length)
		}
		if resp.Value == nil {
			return []byte{}, nil
		}
		return resp.Value, nil
	})
}

func (m *RPCMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.endpoint == "" {
		return nil
	}
	m.endpoint = ""
	return m.transport.Close()
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Stats returns the state of the memory pool as JSON
func (m *RPCMemory) Stats() ([]byte, error) {
	resp, err := m.invoke(common.NewStatsRequest(), remote.RetCIOError)
	if err != nil {
		return nil, err
	}
	return resp.Meta, nil
}

// Endpoint returns the endpoint the memory is connected to, empty if not connected
func (m *RPCMemory) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}
