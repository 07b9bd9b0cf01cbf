package server

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/rpc/common"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/rcrowley/go-metrics"
)

// ShardStats collects the request statistics of one shard.
// Timers and meters live in a go-metrics registry, the stats response is built from it.
type ShardStats struct {
	registry     metrics.Registry
	timers       map[common.MessageType]metrics.Timer
	bytesRead    metrics.Meter
	bytesWritten metrics.Meter
	errors       metrics.Counter
}

// OpStats is the snapshot of one operation timer
type OpStats struct {
	Count  int64   `json:"count"`
	MeanUs float64 `json:"mean_us"`
	P99Us  float64 `json:"p99_us"`
	Rate1  float64 `json:"rate1"`
}

// StatsSnapshot is the payload of a stats response
type StatsSnapshot struct {
	Pool         memstore.Info      `json:"pool"`
	Ops          map[string]OpStats `json:"ops"`
	BytesRead    int64              `json:"bytes_read"`
	BytesWritten int64              `json:"bytes_written"`
	Errors       int64              `json:"errors"`
}

// NewShardStats creates the statistics of a shard
func NewShardStats() *ShardStats {
	r := metrics.NewRegistry()
	s := &ShardStats{
		registry:     r,
		timers:       make(map[common.MessageType]metrics.Timer),
		bytesRead:    metrics.GetOrRegisterMeter("bytes.read", r),
		bytesWritten: metrics.GetOrRegisterMeter("bytes.written", r),
		errors:       metrics.GetOrRegisterCounter("errors", r),
	}
	for _, t := range []common.MessageType{common.MsgTMemAlloc, common.MsgTMemFree, common.MsgTMemRead, common.MsgTMemWrite, common.MsgTMemStats} {
		s.timers[t] = metrics.GetOrRegisterTimer("op."+t.String(), r)
	}
	return s
}

// observe records the duration of a handled request
func (s *ShardStats) observe(t common.MessageType, start time.Time, failed bool) {
	if timer, ok := s.timers[t]; ok {
		timer.UpdateSince(start)
	}
	if failed {
		s.errors.Inc(1)
	}
}

// Snapshot returns the current statistics together with the pool state
func (s *ShardStats) Snapshot(pool *memstore.Pool) StatsSnapshot {
	snap := StatsSnapshot{
		Pool:         pool.Info(),
		Ops:          make(map[string]OpStats, len(s.timers)),
		BytesRead:    s.bytesRead.Count(),
		BytesWritten: s.bytesWritten.Count(),
		Errors:       s.errors.Count(),
	}
	for t, timer := range s.timers {
		ts := timer.Snapshot()
		snap.Ops[t.String()] = OpStats{
			Count:  ts.Count(),
			MeanUs: ts.Mean() / float64(time.Microsecond),
			P99Us:  ts.Percentile(0.99) / float64(time.Microsecond),
			Rate1:  ts.Rate1(),
		}
	}
	return snap
}

// Stop unregisters all metrics, meters stop being ticked
func (s *ShardStats) Stop() {
	s.registry.UnregisterAll()
}

// --------------------------------------------------------------------------
// Prometheus Export
// --------------------------------------------------------------------------

// exporter publishes the state of all shards in the prometheus text format
type exporter struct {
	set *vm.Set
}

func newExporter() *exporter {
	return &exporter{set: vm.NewSet()}
}

// addShard registers the gauges of one shard
func (e *exporter) addShard(id uint64, pool *memstore.Pool, stats *ShardStats) {
	label := func(name string) string {
		return fmt.Sprintf(`%s{shard="%d"}`, name, id)
	}

	e.set.NewGauge(label("dmem_pool_used_bytes"), func() float64 { return float64(pool.Used()) })
	e.set.NewGauge(label("dmem_pool_capacity_bytes"), func() float64 { return float64(pool.Capacity()) })
	e.set.NewGauge(label("dmem_pool_regions"), func() float64 { return float64(pool.Info().Regions) })
	e.set.NewGauge(label("dmem_bytes_read_total"), func() float64 { return float64(stats.bytesRead.Count()) })
	e.set.NewGauge(label("dmem_bytes_written_total"), func() float64 { return float64(stats.bytesWritten.Count()) })
	e.set.NewGauge(label("dmem_request_errors_total"), func() float64 { return float64(stats.errors.Count()) })
	for t, timer := range stats.timers {
		timer := timer
		e.set.NewGauge(fmt.Sprintf(`dmem_requests_total{shard="%d",op="%s"}`, id, t), func() float64 {
			return float64(timer.Count())
		})
	}
}

func (e *exporter) WritePrometheus(w io.Writer) {
	e.set.WritePrometheus(w)
	vm.WriteProcessMetrics(w)
}
