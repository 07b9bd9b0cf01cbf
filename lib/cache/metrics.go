package cache

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// Stats is a snapshot of the counters of a cache
type Stats struct {
	Hits           uint64 `json:"hits"`
	PendingHits    uint64 `json:"pending_hits"`
	Misses         uint64 `json:"misses"`
	Evictions      uint64 `json:"evictions"`
	Prefetches     uint64 `json:"prefetches"`
	PrefetchErrors uint64 `json:"prefetch_errors"`
	Entries        int    `json:"entries"`
}

type cacheMetrics struct {
	set            *metrics.Set
	hits           *metrics.Counter
	pendingHits    *metrics.Counter
	misses         *metrics.Counter
	evictions      *metrics.Counter
	prefetches     *metrics.Counter
	prefetchErrors *metrics.Counter
}

func newCacheMetrics(name string, entries func() float64) *cacheMetrics {
	set := metrics.NewSet()
	label := func(metric string) string {
		return fmt.Sprintf(`dmem_cache_%s{cache=%q}`, metric, name)
	}

	m := &cacheMetrics{
		set:            set,
		hits:           set.NewCounter(label("hits_total")),
		pendingHits:    set.NewCounter(label("pending_hits_total")),
		misses:         set.NewCounter(label("misses_total")),
		evictions:      set.NewCounter(label("evictions_total")),
		prefetches:     set.NewCounter(label("prefetches_total")),
		prefetchErrors: set.NewCounter(label("prefetch_errors_total")),
	}
	set.NewGauge(label("entries"), entries)
	return m
}

func (m *cacheMetrics) snapshot() Stats {
	return Stats{
		Hits:           m.hits.Get(),
		PendingHits:    m.pendingHits.Get(),
		Misses:         m.misses.Get(),
		Evictions:      m.evictions.Get(),
		Prefetches:     m.prefetches.Get(),
		PrefetchErrors: m.prefetchErrors.Get(),
	}
}
