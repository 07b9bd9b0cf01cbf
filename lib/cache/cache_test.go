package cache

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/lib/objstore"
	"github.com/ValentinKolb/dMem/lib/remote"
	remotetesting "github.com/ValentinKolb/dMem/lib/remote/testing"
	"github.com/ValentinKolb/dMem/lib/remote/verbs"
	"github.com/ValentinKolb/dMem/lib/serde"
)

var nextPort atomic.Int32

func init() {
	nextPort.Store(7900)
}

// newStore creates an object store on a counting loopback transport
func newStore(t *testing.T) (*objstore.ObjectStore[string], *remotetesting.CountingTransport) {
	connector := verbs.NewLoopbackConnector()
	port := int(nextPort.Add(1))
	connector.Register("127.0.0.1", port, memstore.NewPool(0))

	tr := remotetesting.NewCountingTransport(verbs.NewTransport(connector))
	if err := tr.Connect(remote.Endpoint("127.0.0.1", port)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return objstore.New(tr, serde.String(), nil), tr
}

func newCache(t *testing.T, store objstore.IObjectStore[string], eviction EvictionPolicy, capacity int, opts ...Option) *CacheManager[string] {
	c, err := New(store, eviction, capacity, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func value(id uint64) string {
	return fmt.Sprintf("value-%d", id)
}

// resident returns the sorted ids of all entries
func resident[T any](c *CacheManager[T]) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint64, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// checkBookkeeping fails if the eviction policy does not track exactly the entries
func checkBookkeeping[T any](t *testing.T, c *CacheManager[T]) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eviction.Len() != len(c.entries) {
		t.Errorf("eviction policy tracks %d ids, cache has %d entries", c.eviction.Len(), len(c.entries))
	}
	if len(c.entries) > c.capacity {
		t.Errorf("%d entries exceed capacity %d", len(c.entries), c.capacity)
	}
}

func TestZeroCapacity(t *testing.T) {
	store, _ := newStore(t)
	for _, capacity := range []int{0, -1} {
		c, err := New[string](store, nil, capacity)
		if !errors.Is(err, ErrZeroCapacity) {
			t.Errorf("capacity %d: expected ErrZeroCapacity, got %v", capacity, err)
		}
		if c != nil {
			t.Errorf("capacity %d: no cache must be returned", capacity)
		}
	}
}

func TestTransparency(t *testing.T) {
	store, tr := newStore(t)
	c := newCache(t, store, nil, 10)

	for id := uint64(0); id < 5; id++ {
		if err := c.Put(id, value(id)); err != nil {
			t.Fatalf("Put(%d) failed: %v", id, err)
		}
	}

	tr.Reset()
	for id := uint64(0); id < 5; id++ {
		v, err := c.Get(id)
		if err != nil || v != value(id) {
			t.Errorf("Get(%d): expected %q, got (%q, %v)", id, value(id), v, err)
		}
	}
	if tr.Total() != 0 {
		t.Errorf("gets of resident ids made %d transport calls", tr.Total())
	}

	// a miss reads exactly once
	if err := store.Put(100, value(100)); err != nil {
		t.Fatal(err)
	}
	tr.Reset()
	for i := 0; i < 3; i++ {
		if v, _ := c.Get(100); v != value(100) {
			t.Errorf("expected %q, got %q", value(100), v)
		}
	}
	if tr.Reads.Load() != 1 {
		t.Errorf("expected 1 read, got %d", tr.Reads.Load())
	}

	stats := c.Stats()
	if stats.Hits != 7 || stats.Misses != 1 {
		t.Errorf("expected 7 hits and 1 miss, got %+v", stats)
	}
}

func TestCapacityBound(t *testing.T) {
	policies := map[string]func() EvictionPolicy{
		"FIFO":   NewFIFOPolicy,
		"LRU":    NewLRUPolicy,
		"Random": func() EvictionPolicy { return NewRandomPolicy(1) },
	}

	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			store, _ := newStore(t)
			c := newCache(t, store, policy(), 7)
			c.SetMode(OrderedRange{First: 0, Last: 40, ReadAhead: 3})

			rng := rand.New(rand.NewPCG(42, 42))
			for i := 0; i < 500; i++ {
				id := uint64(rng.IntN(40))
				if rng.IntN(2) == 0 {
					if err := c.Put(id, value(id)); err != nil {
						t.Fatalf("Put(%d) failed: %v", id, err)
					}
				} else if _, err := c.Get(id); err != nil && !errors.Is(err, objstore.ErrNoSuchID) {
					t.Fatalf("Get(%d) failed: %v", id, err)
				}
				if c.Len() > 7 {
					t.Fatalf("%d entries after operation %d", c.Len(), i)
				}
			}
			checkBookkeeping(t, c)
		})
	}
}

func TestFIFOEvictionOrder(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, store, NewFIFOPolicy(), 5)

	for id := uint64(0); id < 5; id++ {
		if err := c.Put(id, value(id)); err != nil {
			t.Fatal(err)
		}
	}

	// reading the oldest entries does not protect them
	for _, id := range []uint64{0, 1, 0, 2} {
		if _, err := c.Get(id); err != nil {
			t.Fatal(err)
		}
	}

	for id := uint64(5); id < 8; id++ {
		if err := c.Put(id, value(id)); err != nil {
			t.Fatal(err)
		}
	}

	if got, want := resident(c), []uint64{3, 4, 5, 6, 7}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected resident set %v, got %v", want, got)
	}
	if ev := c.Stats().Evictions; ev != 3 {
		t.Errorf("expected 3 evictions, got %d", ev)
	}
	checkBookkeeping(t, c)
}

func TestLRUEvictionOrder(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, store, NewLRUPolicy(), 3)

	for id := uint64(0); id < 3; id++ {
		_ = c.Put(id, value(id))
	}
	_, _ = c.Get(0)
	_ = c.Put(3, value(3))

	if got, want := resident(c), []uint64{0, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected resident set %v, got %v", want, got)
	}
}

func TestRemove(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, store, nil, 4)

	if err := c.Put(1, "one"); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(1); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if c.State(1) != Absent {
		t.Errorf("expected Absent, got %s", c.State(1))
	}
	if _, err := c.Get(1); !errors.Is(err, objstore.ErrNoSuchID) {
		t.Errorf("expected ErrNoSuchID, got %v", err)
	}
	if err := c.Remove(1); !errors.Is(err, objstore.ErrNoSuchID) {
		t.Errorf("second Remove: expected ErrNoSuchID, got %v", err)
	}
	checkBookkeeping(t, c)
}

func TestPutErrorsKeepCache(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, store, nil, 4)

	if err := c.Put(1, "short"); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(1, "much longer than the first value"); !errors.Is(err, objstore.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if v, _ := c.Get(1); v != "short" {
		t.Errorf("failed put changed the cached value to %q", v)
	}
}

func TestEndToEnd(t *testing.T) {
	store, tr := newStore(t)
	c := newCache(t, store, nil, 10, WithName("e2e"), WithDiscardOnEvict())

	for id := uint64(0); id < 16; id++ {
		if err := c.Put(id, value(id)); err != nil {
			t.Fatalf("Put(%d) failed: %v", id, err)
		}
	}

	if _, err := c.Get(0); !errors.Is(err, objstore.ErrNoSuchID) {
		t.Fatalf("Get(0): expected ErrNoSuchID, got %v", err)
	}

	tr.Reset()
	for id := uint64(10); id < 16; id++ {
		v, err := c.Get(id)
		if err != nil || v != value(id) {
			t.Errorf("Get(%d): expected %q, got (%q, %v)", id, value(id), v, err)
		}
	}
	if tr.Total() != 0 {
		t.Errorf("resident gets made %d transport calls", tr.Total())
	}

	// restock the evicted ids behind the cache
	for id := uint64(0); id < 3; id++ {
		if err := store.Put(id, value(id)); err != nil {
			t.Fatal(err)
		}
	}

	c.SetMode(OrderedRange{First: 0, Last: 4, ReadAhead: 2})
	if v, err := c.Get(0); err != nil || v != value(0) {
		t.Fatalf("Get(0): expected %q, got (%q, %v)", value(0), v, err)
	}

	for _, id := range []uint64{1, 2} {
		if s := c.State(id); s != Pending && s != Resident {
			t.Errorf("id %d: expected pending or resident, got %s", id, s)
		}
	}
	if c.Stats().Prefetches != 2 {
		t.Errorf("expected 2 prefetches, got %d", c.Stats().Prefetches)
	}

	tr.Reset()
	for _, id := range []uint64{1, 2} {
		if v, err := c.Get(id); err != nil || v != value(id) {
			t.Errorf("Get(%d): expected %q, got (%q, %v)", id, value(id), v, err)
		}
	}
	if tr.Reads.Load() != 0 {
		t.Errorf("prefetched ids were read again: %d reads", tr.Reads.Load())
	}
	if c.Len() > 10 {
		t.Errorf("%d entries exceed the capacity", c.Len())
	}
	checkBookkeeping(t, c)
}

// --------------------------------------------------------------------------
// Prefetching
// --------------------------------------------------------------------------

// gatedStore is an object store whose async gets complete only after release
type gatedStore struct {
	mu      sync.Mutex
	values  map[uint64]string
	gate    chan struct{}
	asyncs  atomic.Int64
	removes atomic.Int64
}

func newGatedStore() *gatedStore {
	return &gatedStore{values: make(map[uint64]string), gate: make(chan struct{})}
}

func (s *gatedStore) release() { close(s.gate) }

func (s *gatedStore) Put(id uint64, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = v
	return nil
}

func (s *gatedStore) Get(id uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[id]
	if !ok {
		return "", objstore.NewError(objstore.RetCNoSuchID, id, nil, "no such id")
	}
	return v, nil
}

func (s *gatedStore) PutAsync(id uint64, v string) *async.Op[struct{}] {
	return async.Completed(struct{}{})
}

func (s *gatedStore) GetAsync(id uint64) *async.Op[string] {
	s.asyncs.Add(1)
	return async.Go(func() (string, error) {
		<-s.gate
		return s.Get(id)
	})
}

func (s *gatedStore) Remove(id uint64) error {
	s.removes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id]; !ok {
		return objstore.NewError(objstore.RetCNoSuchID, id, nil, "no such id")
	}
	delete(s.values, id)
	return nil
}

func TestPrefetch(t *testing.T) {
	store := newGatedStore()
	_ = store.Put(1, "one")
	c := newCache(t, store, nil, 4)

	c.Prefetch(1)
	if c.State(1) != Pending {
		t.Fatalf("expected Pending, got %s", c.State(1))
	}

	// prefetching a pending id is a no-op
	c.Prefetch(1)
	if store.asyncs.Load() != 1 {
		t.Errorf("expected 1 async get, got %d", store.asyncs.Load())
	}

	got := make(chan string)
	go func() {
		v, _ := c.Get(1)
		got <- v
	}()

	select {
	case v := <-got:
		t.Fatalf("Get returned %q before the prefetch completed", v)
	case <-time.After(20 * time.Millisecond):
	}

	store.release()
	if v := <-got; v != "one" {
		t.Errorf("expected one, got %q", v)
	}
	if c.State(1) != Resident {
		t.Errorf("expected Resident, got %s", c.State(1))
	}
	if s := c.Stats(); s.PendingHits != 1 || s.Misses != 0 {
		t.Errorf("expected 1 pending hit and no miss, got %+v", s)
	}

	// prefetching a resident id is a no-op
	c.Prefetch(1)
	if store.asyncs.Load() != 1 {
		t.Errorf("expected 1 async get, got %d", store.asyncs.Load())
	}
}

func TestPrefetchFailureIsSwallowed(t *testing.T) {
	store := newGatedStore()
	store.release()
	c := newCache(t, store, nil, 4)

	c.Prefetch(9)
	if _, err := c.Get(9); !errors.Is(err, objstore.ErrNoSuchID) {
		t.Errorf("expected ErrNoSuchID, got %v", err)
	}
	if c.State(9) != Absent {
		t.Errorf("failed entry must be dropped, got %s", c.State(9))
	}
	if s := c.Stats(); s.PrefetchErrors != 1 {
		t.Errorf("expected 1 prefetch error, got %+v", s)
	}
	checkBookkeeping(t, c)
}

func TestFailedPrefetchFallsBack(t *testing.T) {
	store := newGatedStore()
	c := newCache(t, store, nil, 4)

	// the prefetch fails, the value appears before the get
	c.Prefetch(5)
	if c.State(5) != Pending {
		t.Fatalf("expected Pending, got %s", c.State(5))
	}
	c.mu.Lock()
	op := c.entries[5].pending
	c.mu.Unlock()
	store.release()
	_, _ = op.Wait()
	_ = store.Put(5, "five")

	if v, err := c.Get(5); err != nil || v != "five" {
		t.Errorf("expected (five, nil), got (%q, %v)", v, err)
	}
	if c.State(5) != Resident {
		t.Errorf("expected Resident, got %s", c.State(5))
	}
}

func TestPrefetchOfMissingIdsKeepsEntries(t *testing.T) {
	factories := []struct {
		name  string
		store func(t *testing.T) objstore.IObjectStore[string]
	}{
		{"ObjectStore", func(t *testing.T) objstore.IObjectStore[string] {
			s, _ := newStore(t)
			return s
		}},
		{"FailingStore", func(t *testing.T) objstore.IObjectStore[string] {
			return failingStore{newGatedStore()}
		}},
	}

	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			store := f.store(t)
			c := newCache(t, store, nil, 3)
			for id := uint64(0); id < 3; id++ {
				if err := c.Put(id, value(id)); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			// wraps past the stored ids: 3, 4 and 5 do not exist
			c.SetMode(OrderedRange{First: 0, Last: 9, ReadAhead: 3})
			if _, err := c.Get(2); err != nil {
				t.Fatalf("Get failed: %v", err)
			}

			if got, want := resident(c), []uint64{0, 1, 2}; !reflect.DeepEqual(got, want) {
				t.Errorf("expected entries %v, got %v", want, got)
			}
			for id := uint64(0); id < 3; id++ {
				if c.State(id) != Resident {
					t.Errorf("id %d: expected Resident, got %s", id, c.State(id))
				}
			}
			if s := c.Stats(); s.PrefetchErrors != 3 || s.Evictions != 0 {
				t.Errorf("expected 3 prefetch errors and no evictions, got %+v", s)
			}
			checkBookkeeping(t, c)
		})
	}
}

// failingStore fails async gets of unknown ids right away
type failingStore struct {
	*gatedStore
}

func (s failingStore) GetAsync(id uint64) *async.Op[string] {
	v, err := s.Get(id)
	if err != nil {
		return async.Failed[string](err)
	}
	return async.Completed(v)
}

func TestPendingEntriesTakeCapacity(t *testing.T) {
	store := newGatedStore()
	for id := uint64(0); id < 10; id++ {
		_ = store.Put(id, value(id))
	}
	c := newCache(t, store, nil, 3)

	for id := uint64(0); id < 5; id++ {
		c.Prefetch(id)
	}
	if got, want := resident(c), []uint64{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected entries %v, got %v", want, got)
	}
	store.release()
	checkBookkeeping(t, c)
}

func TestOrderedRangeMode(t *testing.T) {
	store := newGatedStore()
	for id := uint64(0); id < 20; id++ {
		_ = store.Put(id, value(id))
	}
	store.release()
	c := newCache(t, store, nil, 20)
	c.SetMode(OrderedRange{First: 0, Last: 4, ReadAhead: 2})

	// wraps around at the end of the range
	if _, err := c.Get(4); err != nil {
		t.Fatal(err)
	}
	if got, want := resident(c), []uint64{0, 1, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected entries %v, got %v", want, got)
	}

	// outside the range
	if _, err := c.Get(10); err != nil {
		t.Fatal(err)
	}
	if c.Contains(11) {
		t.Error("access outside the range must not prefetch")
	}

	// put reports the access too
	if err := c.Put(2, "two"); err != nil {
		t.Fatal(err)
	}
	if !c.Contains(3) {
		t.Error("put should prefetch the following ids")
	}

	c.SetMode(None{})
	if _, err := c.Get(15); err != nil {
		t.Fatal(err)
	}
	if c.Contains(16) {
		t.Error("mode None must not prefetch")
	}
	if _, ok := c.Mode().(None); !ok {
		t.Errorf("expected mode None, got %s", c.Mode())
	}
}

// switchingPolicy switches the mode of its cache before returning ids
type switchingPolicy struct {
	cache *CacheManager[string]
}

func (p *switchingPolicy) Next(id uint64) []uint64 {
	p.cache.SetMode(None{})
	return []uint64{id + 1, id + 2}
}

func TestSetModeDiscardsIntents(t *testing.T) {
	store := newGatedStore()
	for id := uint64(0); id < 5; id++ {
		_ = store.Put(id, value(id))
	}
	store.release()
	c := newCache(t, store, nil, 10)
	c.SetMode(Custom{Policy: &switchingPolicy{cache: c}})

	if _, err := c.Get(0); err != nil {
		t.Fatal(err)
	}
	if c.Contains(1) || c.Contains(2) {
		t.Error("prefetches computed under a replaced mode must be dropped")
	}
	if store.asyncs.Load() != 0 {
		t.Errorf("expected no async gets, got %d", store.asyncs.Load())
	}
}

func TestCustomStrideMode(t *testing.T) {
	store := newGatedStore()
	for id := uint64(0); id < 50; id++ {
		_ = store.Put(id, value(id))
	}
	store.release()
	c := newCache(t, store, nil, 50)
	c.SetMode(Custom{Policy: NewStridePolicy(2)})

	for _, id := range []uint64{3, 6, 9} {
		if _, err := c.Get(id); err != nil {
			t.Fatal(err)
		}
	}
	if !c.Contains(12) || !c.Contains(15) {
		t.Errorf("expected 12 and 15 to be prefetched, entries %v", resident(c))
	}
	if c.Contains(18) {
		t.Error("read ahead of 2 must not prefetch 18")
	}
}

func TestDrain(t *testing.T) {
	store := newGatedStore()
	_ = store.Put(1, "one")
	c := newCache(t, store, nil, 4, WithDrainInterval(2*time.Millisecond))

	c.Prefetch(1)
	c.Prefetch(2) // fails
	store.release()

	deadline := time.Now().Add(2 * time.Second)
	for c.State(1) != Resident || c.Contains(2) {
		if time.Now().After(deadline) {
			t.Fatalf("drain did not absorb prefetches: 1 is %s, 2 is %s", c.State(1), c.State(2))
		}
		time.Sleep(2 * time.Millisecond)
	}
	if c.Stats().PrefetchErrors != 1 {
		t.Errorf("expected 1 prefetch error, got %d", c.Stats().PrefetchErrors)
	}
	checkBookkeeping(t, c)

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestDiscardOnEvict(t *testing.T) {
	store := newGatedStore()
	store.release()
	c := newCache(t, store, nil, 2, WithDiscardOnEvict())

	for id := uint64(0); id < 4; id++ {
		_ = c.Put(id, value(id))
	}
	if store.removes.Load() != 2 {
		t.Errorf("expected 2 removes, got %d", store.removes.Load())
	}
	if _, err := store.Get(0); !errors.Is(err, objstore.ErrNoSuchID) {
		t.Errorf("evicted id still in the store: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, store, NewLRUPolicy(), 16)
	c.SetMode(OrderedRange{First: 0, Last: 63, ReadAhead: 4})

	for id := uint64(0); id < 64; id++ {
		if err := store.Put(id, value(id)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(g), 7))
			for i := 0; i < 200; i++ {
				id := uint64(rng.IntN(64))
				v, err := c.Get(id)
				if err != nil {
					t.Errorf("Get(%d) failed: %v", id, err)
					return
				}
				if v != value(id) {
					t.Errorf("Get(%d): expected %q, got %q", id, value(id), v)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	checkBookkeeping(t, c)
}

func TestMetrics(t *testing.T) {
	store, _ := newStore(t)
	c := newCache(t, store, nil, 4, WithName("test"))

	_ = c.Put(1, "one")
	_, _ = c.Get(1)
	_, _ = c.Get(2)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()
	for _, line := range []string{
		`dmem_cache_hits_total{cache="test"} 1`,
		`dmem_cache_misses_total{cache="test"} 1`,
		`dmem_cache_entries{cache="test"} 1`,
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
}
