package memstore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dMem/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// Errors returned by Pool. They are sent verbatim to clients, so they carry a prefix.
var (
	ErrZeroSize    = errors.New("memstore: allocation size must be greater than zero")
	ErrCapacity    = errors.New("memstore: capacity exhausted")
	ErrTooLarge    = errors.New("memstore: region size exceeds the maximum")
	ErrNoRegion    = errors.New("memstore: no such region")
	ErrBadKey      = errors.New("memstore: access key mismatch")
	ErrOutOfBounds = errors.New("memstore: access out of region bounds")
)

// MaxRegionSize bounds a single allocation, also in pools without a capacity
const MaxRegionSize = 1 << 34

// region is one allocation of a Pool
type region struct {
	key  uint64
	data []byte
	mu   sync.RWMutex
}

// Info is a snapshot of the pool state
type Info struct {
	Capacity        uint64 `json:"capacity"` // 0 means unbounded
	Used            uint64 `json:"used"`
	Regions         int    `json:"regions"`
	Allocations     uint64 `json:"allocations"`
	Frees           uint64 `json:"frees"`
	Rejected        uint64 `json:"rejected"`
	AvgAllocSize    uint64 `json:"avg_alloc_size"`
	MedianAllocSize uint64 `json:"median_alloc_size"`
}

// Pool is the memory of one memory server shard: a set of byte regions keyed by
// address, each guarded by a random access key. The sum of all region sizes
// never exceeds the capacity of the pool.
//
// Thread-safe: all methods are safe for concurrent use. Accesses to different
// regions do not contend, accesses to the same region are serialized per region.
type Pool struct {
	capacity uint64
	used     atomic.Uint64
	nextAddr atomic.Uint64
	regions  *xsync.MapOf[uint64, *region]
	sizes    *util.SizeHistogram

	allocations atomic.Uint64
	frees       atomic.Uint64
	rejected    atomic.Uint64
}

// NewPool creates a pool holding at most capacity bytes (0 for no limit)
func NewPool(capacity uint64) *Pool {
	p := &Pool{
		capacity: capacity,
		regions:  xsync.NewMapOf[uint64, *region](),
		sizes:    util.NewSizeHistogram(),
	}
	// address 0 is never handed out
	p.nextAddr.Store(0x1000)
	return p
}

// --------------------------------------------------------------------------
// Control Path
// --------------------------------------------------------------------------

// Allocate reserves a zeroed region of size bytes and returns its address and access key
func (p *Pool) Allocate(size uint64) (addr, key uint64, err error) {
	if size == 0 {
		p.rejected.Add(1)
		return 0, 0, ErrZeroSize
	}
	if size > MaxRegionSize {
		p.rejected.Add(1)
		return 0, 0, fmt.Errorf("%w: requested %d bytes, at most %d", ErrTooLarge, size, uint64(MaxRegionSize))
	}
	if !p.reserve(size) {
		p.rejected.Add(1)
		return 0, 0, fmt.Errorf("%w: requested %d bytes, %d of %d in use", ErrCapacity, size, p.used.Load(), p.capacity)
	}

	// page align addresses so they look like what they are
	addr = p.nextAddr.Add(align(size)) - align(size)
	key = util.GenerateSeed()

	p.regions.Store(addr, &region{key: key, data: make([]byte, size)})
	p.sizes.AddSample(size)
	p.allocations.Add(1)
	return addr, key, nil
}

// Free releases a region
func (p *Pool) Free(addr, key uint64) error {
	var freed *region
	var err error
	p.regions.Compute(addr, func(r *region, loaded bool) (*region, bool) {
		if !loaded {
			err = ErrNoRegion
			return r, true
		}
		if r.key != key {
			err = ErrBadKey
			return r, false
		}
		freed = r
		return r, true
	})
	if err != nil {
		return err
	}

	// accesses that looked the region up before it was removed finish first,
	// later ones see an empty region
	freed.mu.Lock()
	size := uint64(len(freed.data))
	freed.data = nil
	freed.mu.Unlock()

	p.used.Add(^(size - 1))
	p.frees.Add(1)
	return nil
}

// --------------------------------------------------------------------------
// Data Path
// --------------------------------------------------------------------------

// Read copies length bytes at offset out of the region
func (p *Pool) Read(addr, key, offset, length uint64) ([]byte, error) {
	r, err := p.lookup(addr, key)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := checkBounds(r, offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, r.data[offset:offset+length])
	return out, nil
}

// ReadInto copies len(buf) bytes at offset out of the region into buf
func (p *Pool) ReadInto(addr, key, offset uint64, buf []byte) error {
	r, err := p.lookup(addr, key)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := checkBounds(r, offset, uint64(len(buf))); err != nil {
		return err
	}
	copy(buf, r.data[offset:])
	return nil
}

// Write copies data into the region at offset
func (p *Pool) Write(addr, key, offset uint64, data []byte) error {
	r, err := p.lookup(addr, key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkBounds(r, offset, uint64(len(data))); err != nil {
		return err
	}
	copy(r.data[offset:], data)
	return nil
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Info returns a snapshot of the pool state
func (p *Pool) Info() Info {
	return Info{
		Capacity:        p.capacity,
		Used:            p.used.Load(),
		Regions:         p.regions.Size(),
		Allocations:     p.allocations.Load(),
		Frees:           p.frees.Load(),
		Rejected:        p.rejected.Load(),
		AvgAllocSize:    p.sizes.Average(),
		MedianAllocSize: p.sizes.Median(),
	}
}

// Used returns the number of allocated bytes
func (p *Pool) Used() uint64 {
	return p.used.Load()
}

// Capacity returns the configured capacity (0 for no limit)
func (p *Pool) Capacity() uint64 {
	return p.capacity
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// reserve adds size to the used bytes if the capacity allows it
func (p *Pool) reserve(size uint64) bool {
	for {
		used := p.used.Load()
		if p.capacity > 0 && (used+size > p.capacity || used+size < used) {
			return false
		}
		if p.used.CompareAndSwap(used, used+size) {
			return true
		}
	}
}

func (p *Pool) lookup(addr, key uint64) (*region, error) {
	r, ok := p.regions.Load(addr)
	if !ok {
		return nil, ErrNoRegion
	}
	if r.key != key {
		return nil, ErrBadKey
	}
	return r, nil
}

func checkBounds(r *region, offset, length uint64) error {
	size := uint64(len(r.data))
	if offset > size || length > size-offset {
		return fmt.Errorf("%w: offset %d length %d region size %d", ErrOutOfBounds, offset, length, size)
	}
	return nil
}

// align rounds size up to a multiple of 4096
func align(size uint64) uint64 {
	const page = 4096
	return (size + page - 1) &^ (page - 1)
}
