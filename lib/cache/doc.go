/*
Package cache provides CacheManager, a capacity bounded client side cache in
front of an objstore.IObjectStore, and RangeIterator for ordered traversal.

Every id is in one of three states:

	Absent -> Pending (prefetch in flight) -> Resident -> Absent (evicted or removed)

Usage:

	store := objstore.New(transport, serde.Float64Vector(128), nil)
	cm, err := cache.New[[]float64](store, cache.NewFIFOPolicy(), 1024)
	if err != nil { ... }

	cm.SetMode(cache.OrderedRange{First: 0, Last: 9999, ReadAhead: 8})

	it := cache.NewRangeIterator(cm, 8, 0, 9999)
	for id, v := range it.All() {
		...
	}

Eviction is pluggable: NewFIFOPolicy (the default, evicts by insertion order
and ignores later accesses), NewLRUPolicy and NewRandomPolicy. Prefetching is
selected with SetMode: None, OrderedRange or Custom with any PrefetchPolicy
such as NewStridePolicy.

Prefetches are advisory. Their failures are counted in the metrics and never
returned to callers.
*/
package cache
