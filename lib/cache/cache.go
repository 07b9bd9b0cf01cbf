package cache

import (
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/objstore"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cache")

// existenceChecker is implemented by stores that can tell whether an id is
// stored without a remote call, like objstore.ObjectStore
type existenceChecker interface {
	Has(id uint64) bool
}

// entry is Pending while pending is set, Resident otherwise
type entry[T any] struct {
	value   T
	pending *async.Op[T]
}

// CacheManager is a capacity bounded local view of an object store.
//
// Gets of resident ids are answered without a transport call. Puts write
// through to the store. After every successful get or put the active prefetch
// mode may load more ids in the background, these prefetches take up cache
// capacity like any other entry.
//
// Thread-safe: entries and eviction bookkeeping share one mutex, waits for
// remote operations happen outside of it.
type CacheManager[T any] struct {
	name     string
	store    objstore.IObjectStore[T]
	eviction EvictionPolicy
	capacity int
	discard  bool
	logger   logger.ILogger
	metrics  *cacheMetrics

	mu         sync.Mutex
	entries    map[uint64]*entry[T]
	mode       Mode
	prefetcher PrefetchPolicy
	generation uint64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a cache holding at most capacity entries of store. A nil eviction
// policy selects NewFIFOPolicy. Prefetching is off until SetMode is called.
func New[T any](store objstore.IObjectStore[T], eviction EvictionPolicy, capacity int, opts ...Option) (*CacheManager[T], error) {
	if capacity <= 0 {
		return nil, ErrZeroCapacity
	}
	if eviction == nil {
		eviction = NewFIFOPolicy()
	}

	o := options{name: "default", logger: Logger}
	for _, opt := range opts {
		opt(&o)
	}

	c := &CacheManager[T]{
		name:     o.name,
		store:    store,
		eviction: eviction,
		capacity: capacity,
		discard:  o.discardOnEvict,
		logger:   o.logger,
		entries:  make(map[uint64]*entry[T], capacity+1),
		mode:     None{},
		stopCh:   make(chan struct{}),
	}
	c.metrics = newCacheMetrics(o.name, func() float64 { return float64(c.Len()) })

	if o.drainInterval > 0 {
		c.wg.Add(1)
		go c.drain(o.drainInterval)
	}

	c.logger.Debugf("cache %s created: capacity %d, eviction %s", c.name, capacity, eviction.Name())
	return c, nil
}

// --------------------------------------------------------------------------
// Access
// --------------------------------------------------------------------------

// Get returns the value of id. A resident value is returned directly, a
// pending prefetch is waited for. Otherwise the value is read from the store
// and inserted. Errors of the store are returned unchanged.
func (c *CacheManager[T]) Get(id uint64) (T, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok && e.pending == nil {
		v := e.value
		c.eviction.Access(id, false, c.capacity)
		c.mu.Unlock()

		c.metrics.hits.Inc()
		c.accessed(id)
		return v, nil
	}
	var op *async.Op[T]
	if ok {
		op = e.pending
	}
	c.mu.Unlock()

	if op != nil {
		v, err := op.Wait()
		if err == nil {
			c.resolve(id, e, v)
			c.metrics.pendingHits.Inc()
			c.accessed(id)
			return v, nil
		}
		c.metrics.prefetchErrors.Inc()
		c.logger.Debugf("cache %s: prefetch of %d failed, reading again: %v", c.name, id, err)
	}

	c.metrics.misses.Inc()
	v, err := c.store.Get(id)
	if err != nil {
		if op != nil {
			c.drop(id, e)
		}
		return v, err
	}

	c.insert(id, v)
	c.accessed(id)
	return v, nil
}

// Put writes v through to the store and makes it the resident value of id
func (c *CacheManager[T]) Put(id uint64, v T) error {
	if err := c.store.Put(id, v); err != nil {
		return err
	}
	c.insert(id, v)
	c.accessed(id)
	return nil
}

// Prefetch starts loading id in the background and returns immediately.
// Nothing happens if id is resident or pending. Failures are never reported,
// a later Get of id reads it again.
func (c *CacheManager[T]) Prefetch(id uint64) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.prefetch(id, gen)
}

// Remove drops id from the cache and removes it from the store
func (c *CacheManager[T]) Remove(id uint64) error {
	c.mu.Lock()
	if _, ok := c.entries[id]; ok {
		delete(c.entries, id)
		c.eviction.Remove(id)
	}
	c.mu.Unlock()

	return c.store.Remove(id)
}

// SetMode switches the prefetch mode. Prefetches computed under the previous
// mode and not yet issued are dropped, issued prefetches complete normally.
func (c *CacheManager[T]) SetMode(mode Mode) {
	if mode == nil {
		mode = None{}
	}

	c.mu.Lock()
	c.mode = mode
	c.prefetcher = mode.policy()
	c.generation++
	c.mu.Unlock()

	c.logger.Debugf("cache %s: prefetch mode %s", c.name, mode)
}

// --------------------------------------------------------------------------
// Inspection
// --------------------------------------------------------------------------

// Mode returns the active prefetch mode
func (c *CacheManager[T]) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Len returns the number of entries, resident and pending
func (c *CacheManager[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries
func (c *CacheManager[T]) Capacity() int {
	return c.capacity
}

// Contains reports whether id is resident or pending
func (c *CacheManager[T]) Contains(id uint64) bool {
	return c.State(id) != Absent
}

// State returns the state of id. A completed but not yet absorbed prefetch
// is reported as Pending.
func (c *CacheManager[T]) State(id uint64) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	switch {
	case !ok:
		return Absent
	case e.pending != nil:
		return Pending
	default:
		return Resident
	}
}

// Stats returns the counters of the cache
func (c *CacheManager[T]) Stats() Stats {
	s := c.metrics.snapshot()
	s.Entries = c.Len()
	return s
}

// WritePrometheus writes the metrics of the cache in Prometheus text format
func (c *CacheManager[T]) WritePrometheus(w io.Writer) {
	c.metrics.set.WritePrometheus(w)
}

// Close stops the drain goroutine. The cache stays usable.
func (c *CacheManager[T]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
	})
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// insert makes v the resident value of id and evicts if the cache overflows
func (c *CacheManager[T]) insert(id uint64, v T) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		e.value = v
		e.pending = nil
		c.eviction.Access(id, false, c.capacity)
		c.mu.Unlock()
		return
	}

	c.entries[id] = &entry[T]{value: v}
	victims := c.evictLocked(c.eviction.Access(id, true, c.capacity))
	c.mu.Unlock()

	c.discardAll(victims)
}

// prefetch issues a get of id as a pending entry unless the mode changed since gen
func (c *CacheManager[T]) prefetch(id uint64, gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if _, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return
	}

	// an id that cannot load must not push out resident entries
	if h, ok := c.store.(existenceChecker); ok && !h.Has(id) {
		c.mu.Unlock()
		c.skipPrefetch(id, objstore.ErrNoSuchID)
		return
	}
	op := c.store.GetAsync(id)
	if op.TryWait() && op.Err() != nil {
		c.mu.Unlock()
		c.skipPrefetch(id, op.Err())
		return
	}

	c.entries[id] = &entry[T]{pending: op}
	victims := c.evictLocked(c.eviction.Access(id, true, c.capacity))
	c.mu.Unlock()

	c.metrics.prefetches.Inc()
	c.discardAll(victims)
}

func (c *CacheManager[T]) skipPrefetch(id uint64, err error) {
	c.metrics.prefetchErrors.Inc()
	c.logger.Debugf("cache %s: prefetch of id %d skipped: %v", c.name, id, err)
}

// accessed reports an access to the prefetch mode and issues its prefetches
func (c *CacheManager[T]) accessed(id uint64) {
	c.mu.Lock()
	p, gen := c.prefetcher, c.generation
	c.mu.Unlock()

	if p == nil {
		return
	}
	for _, next := range p.Next(id) {
		c.prefetch(next, gen)
	}
}

// resolve turns a pending entry resident, if it is still the entry of id
func (c *CacheManager[T]) resolve(id uint64, e *entry[T], v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[id] == e && e.pending != nil {
		e.value = v
		e.pending = nil
	}
}

// drop removes a dead pending entry, if it is still the entry of id
func (c *CacheManager[T]) drop(id uint64, e *entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[id] == e && e.pending != nil {
		delete(c.entries, id)
		c.eviction.Remove(id)
	}
}

// evictLocked deletes the victims and returns the ids to remove from the store
func (c *CacheManager[T]) evictLocked(victims []uint64) []uint64 {
	for _, id := range victims {
		if _, ok := c.entries[id]; !ok {
			c.logger.Warningf("cache %s: eviction policy %s returned unknown id %d", c.name, c.eviction.Name(), id)
			continue
		}
		delete(c.entries, id)
		c.metrics.evictions.Inc()
	}
	if !c.discard {
		return nil
	}
	return victims
}

func (c *CacheManager[T]) discardAll(ids []uint64) {
	for _, id := range ids {
		if err := c.store.Remove(id); err != nil {
			c.logger.Debugf("cache %s: discard of evicted id %d failed: %v", c.name, id, err)
		}
	}
}

// drain absorbs completed prefetches until Close
func (c *CacheManager[T]) drain(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		for id, e := range c.entries {
			if e.pending == nil || !e.pending.TryWait() {
				continue
			}
			v, err := e.pending.Wait()
			if err != nil {
				delete(c.entries, id)
				c.eviction.Remove(id)
				c.metrics.prefetchErrors.Inc()
				continue
			}
			e.value = v
			e.pending = nil
		}
		c.mu.Unlock()
	}
}
