package objstore

import (
	"fmt"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/lib/serde"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc/pool"
)

var Logger = logger.GetLogger("objstore")

const defaultBulkConcurrency = 16

// Options configure an ObjectStore. A nil *Options selects the defaults.
type Options struct {
	// BulkConcurrency bounds the transport calls in flight during PutBulk and GetBulk
	BulkConcurrency int
}

// ObjectStore is the IObjectStore backed by an ITransport. Values are encoded
// with a serde.ISerializer, every object gets its own remote region.
//
// Overwriting an object reuses its region, so the new value must not be larger
// than the first value stored under the id (ErrSizeMismatch otherwise). Fixed
// size serializers never hit this limit.
type ObjectStore[T any] struct {
	transport  remote.ITransport
	serializer serde.ISerializer[T]
	locations  *xsync.MapOf[uint64, RemoteLocation]
	bulk       int
}

// New creates a store on a connected transport
func New[T any](transport remote.ITransport, serializer serde.ISerializer[T], opts *Options) *ObjectStore[T] {
	bulk := defaultBulkConcurrency
	if opts != nil && opts.BulkConcurrency > 0 {
		bulk = opts.BulkConcurrency
	}

	return &ObjectStore[T]{
		transport:  transport,
		serializer: serializer,
		locations:  xsync.NewMapOf[uint64, RemoteLocation](),
		bulk:       bulk,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see objstore/interface.go)
// --------------------------------------------------------------------------

func (s *ObjectStore[T]) Put(id uint64, v T) error {
	data, err := s.encode(id, v)
	if err != nil {
		return err
	}

	if loc, ok := s.locations.Load(id); ok {
		return s.overwrite(id, loc, data)
	}

	// a region is never empty, zero length values get one byte
	size := max(uint64(len(data)), 1)
	h, err := s.transport.Allocate(size)
	if err != nil {
		return err
	}
	if err := s.transport.WriteSync(h, 0, data); err != nil {
		s.free(id, h)
		return err
	}

	loc := RemoteLocation{Size: size, Length: uint64(len(data)), Handle: h}
	actual, loaded := s.locations.LoadOrStore(id, loc)
	if !loaded {
		return nil
	}

	// another put of the same id won, write into its region instead
	s.free(id, h)
	return s.overwrite(id, actual, data)
}

func (s *ObjectStore[T]) Get(id uint64) (T, error) {
	loc, ok := s.locations.Load(id)
	if !ok {
		var zero T
		return zero, NewError(RetCNoSuchID, id, nil, "no such id")
	}

	data, err := s.transport.ReadSync(loc.Handle, 0, loc.Length)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.decode(id, data)
}

func (s *ObjectStore[T]) PutAsync(id uint64, v T) *async.Op[struct{}] {
	data, err := s.encode(id, v)
	if err != nil {
		return async.Failed[struct{}](err)
	}

	loc, ok := s.locations.Load(id)
	if !ok {
		// first put: allocation is a control path call and has no async variant
		return async.Go(func() (struct{}, error) {
			return struct{}{}, s.Put(id, v)
		})
	}
	if uint64(len(data)) > loc.Size {
		return async.Failed[struct{}](s.sizeMismatch(id, loc, data))
	}

	return async.Then(s.transport.WriteAsync(loc.Handle, 0, data), func(int) (struct{}, error) {
		s.setLength(id, loc.Handle, uint64(len(data)))
		return struct{}{}, nil
	})
}

func (s *ObjectStore[T]) GetAsync(id uint64) *async.Op[T] {
	loc, ok := s.locations.Load(id)
	if !ok {
		return async.Failed[T](NewError(RetCNoSuchID, id, nil, "no such id"))
	}

	return async.Then(s.transport.ReadAsync(loc.Handle, 0, loc.Length), func(data []byte) (T, error) {
		return s.decode(id, data)
	})
}

func (s *ObjectStore[T]) Remove(id uint64) error {
	loc, ok := s.locations.LoadAndDelete(id)
	if !ok {
		return NewError(RetCNoSuchID, id, nil, "no such id")
	}
	return s.transport.Free(loc.Handle)
}

// --------------------------------------------------------------------------
// Bulk Methods
// --------------------------------------------------------------------------

// PutBulk stores values[i] under first+i. Up to Options.BulkConcurrency puts
// run at once. All values are attempted, the returned error joins every failure.
func (s *ObjectStore[T]) PutBulk(first uint64, values []T) error {
	p := pool.New().WithMaxGoroutines(s.bulk).WithErrors()
	for i, v := range values {
		id := first + uint64(i)
		p.Go(func() error {
			return s.Put(id, v)
		})
	}
	return p.Wait()
}

// GetBulk returns the values of the ids first..last (inclusive).
// If any get fails the slice is nil and the error joins every failure.
func (s *ObjectStore[T]) GetBulk(first, last uint64) ([]T, error) {
	if last < first {
		return nil, fmt.Errorf("objstore: invalid range [%d, %d]", first, last)
	}

	values := make([]T, last-first+1)
	p := pool.New().WithMaxGoroutines(s.bulk).WithErrors()
	for i := range values {
		id := first + uint64(i)
		p.Go(func() error {
			v, err := s.GetAsync(id).Wait()
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// --------------------------------------------------------------------------
// Inspection
// --------------------------------------------------------------------------

// Has reports whether a location is recorded for id
func (s *ObjectStore[T]) Has(id uint64) bool {
	_, ok := s.locations.Load(id)
	return ok
}

// Len returns the number of stored objects
func (s *ObjectStore[T]) Len() int {
	return s.locations.Size()
}

// Location returns the remote location of id
func (s *ObjectStore[T]) Location(id uint64) (RemoteLocation, bool) {
	return s.locations.Load(id)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (s *ObjectStore[T]) encode(id uint64, v T) ([]byte, error) {
	data := make([]byte, s.serializer.Size(v))
	if err := s.serializer.Serialize(v, data); err != nil {
		return nil, NewError(RetCSizeMismatch, id, err, "serialize failed")
	}
	return data, nil
}

func (s *ObjectStore[T]) decode(id uint64, data []byte) (T, error) {
	v, err := s.serializer.Deserialize(data)
	if err != nil {
		return v, NewError(RetCCorrupt, id, err, "deserialize %d bytes failed", len(data))
	}
	return v, nil
}

func (s *ObjectStore[T]) overwrite(id uint64, loc RemoteLocation, data []byte) error {
	if uint64(len(data)) > loc.Size {
		return s.sizeMismatch(id, loc, data)
	}
	if err := s.transport.WriteSync(loc.Handle, 0, data); err != nil {
		return err
	}
	s.setLength(id, loc.Handle, uint64(len(data)))
	return nil
}

// setLength records the length of a completed write, unless the object was
// removed (and maybe put again) in the meantime
func (s *ObjectStore[T]) setLength(id uint64, h remote.Handle, length uint64) {
	s.locations.Compute(id, func(loc RemoteLocation, loaded bool) (RemoteLocation, bool) {
		if !loaded || loc.Handle != h {
			return loc, !loaded
		}
		loc.Length = length
		return loc, false
	})
}

func (s *ObjectStore[T]) sizeMismatch(id uint64, loc RemoteLocation, data []byte) error {
	return NewError(RetCSizeMismatch, id, nil, "value of %d bytes exceeds the allocation of %d bytes", len(data), loc.Size)
}

func (s *ObjectStore[T]) free(id uint64, h remote.Handle) {
	if err := s.transport.Free(h); err != nil {
		Logger.Warningf("failed to free region %s of id %d: %v", h, id, err)
	}
}
