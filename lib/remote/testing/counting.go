package testing

import (
	"sync/atomic"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
)

// CountingTransport wraps a transport and counts every call by kind.
// Tests use it to observe whether a layer above issued transport calls at all.
type CountingTransport struct {
	remote.ITransport

	Allocs atomic.Int64
	Frees  atomic.Int64
	Reads  atomic.Int64
	Writes atomic.Int64
}

// NewCountingTransport wraps inner
func NewCountingTransport(inner remote.ITransport) *CountingTransport {
	return &CountingTransport{ITransport: inner}
}

// Total returns the number of calls of any kind
func (c *CountingTransport) Total() int64 {
	return c.Allocs.Load() + c.Frees.Load() + c.Reads.Load() + c.Writes.Load()
}

// Reset sets all counters to zero
func (c *CountingTransport) Reset() {
	c.Allocs.Store(0)
	c.Frees.Store(0)
	c.Reads.Store(0)
	c.Writes.Store(0)
}

func (c *CountingTransport) Allocate(size uint64) (remote.Handle, error) {
	c.Allocs.Add(1)
	return c.ITransport.Allocate(size)
}

func (c *CountingTransport) Free(h remote.Handle) error {
	c.Frees.Add(1)
	return c.ITransport.Free(h)
}

func (c *CountingTransport) WriteSync(h remote.Handle, offset uint64, data []byte) error {
	c.Writes.Add(1)
	return c.ITransport.WriteSync(h, offset, data)
}

func (c *CountingTransport) ReadSync(h remote.Handle, offset, length uint64) ([]byte, error) {
	c.Reads.Add(1)
	return c.ITransport.ReadSync(h, offset, length)
}

func (c *CountingTransport) WriteAsync(h remote.Handle, offset uint64, data []byte) *async.Op[int] {
	c.Writes.Add(1)
	return c.ITransport.WriteAsync(h, offset, data)
}

func (c *CountingTransport) ReadAsync(h remote.Handle, offset, length uint64) *async.Op[[]byte] {
	c.Reads.Add(1)
	return c.ITransport.ReadAsync(h, offset, length)
}
