package perf

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dMem/cmd/util"
	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/cache"
	"github.com/ValentinKolb/dMem/lib/objstore"
	"github.com/ValentinKolb/dMem/lib/serde"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dMem")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	if viper.GetString("transport") == "loopback" {
		fmt.Println("  in-process loopback memory")
	} else {
		fmt.Println(util.GetClientConfig().String())
	}
	fmt.Printf("Threads: %d, Objects: %d, Dimension: %d, Cache: %d (%s, read-ahead %d)\n",
		perfThreads, perfObjects, perfDimension, perfCapacity, perfEviction, perfReadAhead)
	fmt.Println()

	t, err := newTransport()
	if err != nil {
		return err
	}
	defer t.Close()

	store := objstore.New[[]float64](t, serde.Float64Vector(perfDimension), &objstore.Options{BulkConcurrency: perfThreads})
	values := makeVectors()

	fmt.Println("staring tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	results["put"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put") {
			return
		}

		b.Cleanup(func() { removeAll(store) })
		b.SetParallelism(perfThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := rand.IntN(perfObjects)
			for pb.Next() {
				id := counter % perfObjects
				if err := store.Put(uint64(id), values[id]); err != nil {
					log.Printf("(put) - error storing object %d: %v\n", id, err)
				}
				counter++
			}
		})
	})
	printResult("put", results["put"])

	results["put-bulk"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put-bulk") {
			return
		}

		b.Cleanup(func() { removeAll(store) })
		b.ResetTimer()

		// one op stores all objects
		for i := 0; i < b.N; i++ {
			if err := store.PutBulk(0, values); err != nil {
				log.Printf("(put-bulk) - error storing objects: %v\n", err)
			}
		}
	})
	printResult("put-bulk", results["put-bulk"])

	results["get"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		fill(b, store, values)
		b.SetParallelism(perfThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := rand.IntN(perfObjects)
			for pb.Next() {
				id := uint64(counter % perfObjects)
				if _, err := store.Get(id); err != nil {
					log.Printf("(get) - error loading object %d: %v\n", id, err)
				}
				counter++
			}
		})
	})
	printResult("get", results["get"])

	results["get-async"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get-async") {
			return
		}

		fill(b, store, values)
		b.ResetTimer()

		// keep perfThreads reads in flight from a single goroutine
		ops := make([]*async.Op[[]float64], 0, perfThreads)
		for i := 0; i < b.N; i++ {
			ops = append(ops, store.GetAsync(uint64(i%perfObjects)))
			if len(ops) == cap(ops) || i == b.N-1 {
				for _, op := range ops {
					if _, err := op.Wait(); err != nil {
						log.Printf("(get-async) - error loading object: %v\n", err)
					}
				}
				ops = ops[:0]
			}
		}
	})
	printResult("get-async", results["get-async"])

	var lastCache *cache.CacheManager[[]float64]

	results["cache-random"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("cache-random") {
			return
		}

		fill(b, store, values)
		cm := newCache(b, store, "cache-random")
		lastCache = cm
		b.SetParallelism(perfThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				id := uint64(rand.IntN(perfObjects))
				if _, err := cm.Get(id); err != nil {
					log.Printf("(cache-random) - error loading object %d: %v\n", id, err)
				}
			}
		})
	})
	printResult("cache-random", results["cache-random"])

	results["cache-scan"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("cache-scan") {
			return
		}

		fill(b, store, values)
		cm := newCache(b, store, "cache-scan")
		lastCache = cm
		b.ResetTimer()

		// every worker scans its own slice of the id space with prefetching
		var wg conc.WaitGroup
		span := max(1, perfObjects/perfThreads)
		for w := 0; w < perfThreads; w++ {
			first := uint64(min(w*span, perfObjects-1))
			last := uint64(min((w+1)*span, perfObjects) - 1)
			if w == perfThreads-1 {
				last = uint64(perfObjects - 1)
			}
			steps := b.N / perfThreads
			if w == 0 {
				steps += b.N % perfThreads
			}
			wg.Go(func() { scan(cm, first, last, steps) })
		}
		wg.Wait()
	})
	printResult("cache-scan", results["cache-scan"])

	if lastCache != nil {
		printStats(lastCache.Stats())
		if viper.GetBool("metrics") {
			fmt.Println()
			lastCache.WritePrometheus(os.Stdout)
		}
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// makeVectors creates the values stored by the benchmarks
func makeVectors() [][]float64 {
	values := make([][]float64, perfObjects)
	for i := range values {
		v := make([]float64, perfDimension)
		for j := range v {
			v[j] = float64(i) + float64(j)/float64(perfDimension)
		}
		values[i] = v
	}
	return values
}

// fill stores all values before the timer starts and removes them when the benchmark ends
func fill(b *testing.B, store *objstore.ObjectStore[[]float64], values [][]float64) {
	if err := store.PutBulk(0, values); err != nil {
		log.Printf("error storing objects: %v\n", err)
	}
	b.Cleanup(func() { removeAll(store) })
}

func removeAll(store *objstore.ObjectStore[[]float64]) {
	p := pool.New().WithMaxGoroutines(perfThreads)
	for id := 0; id < perfObjects; id++ {
		p.Go(func() {
			if err := store.Remove(uint64(id)); err != nil && !errors.Is(err, objstore.ErrNoSuchID) {
				log.Printf("error removing object %d: %v\n", id, err)
			}
		})
	}
	p.Wait()
}

func newCache(b *testing.B, store objstore.IObjectStore[[]float64], name string) *cache.CacheManager[[]float64] {
	eviction, err := newEvictionPolicy()
	if err != nil {
		b.Fatal(err)
	}
	cm, err := cache.New(store, eviction, perfCapacity, cache.WithName(name))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = cm.Close() })
	return cm
}

// scan reads steps objects from [first, last], starting over at the end of the range
func scan(cm *cache.CacheManager[[]float64], first, last uint64, steps int) {
	it := cache.NewRangeIterator(cm, uint64(perfReadAhead), first, last)
	cursor, end := it.Begin(), it.End()
	for i := 0; i < steps; i++ {
		if cursor.Equal(end) {
			cursor = it.Begin()
		}
		if _, err := cursor.Value(); err != nil {
			log.Printf("(cache-scan) - error loading object %d: %v\n", cursor.Pos(), err)
		}
		cursor.Next()
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

func printStats(s cache.Stats) {
	fmt.Println()
	fmt.Println("Cache (last run):")
	fmt.Printf("  hits %d, pending hits %d, misses %d, evictions %d, prefetches %d (%d failed)\n",
		s.Hits, s.PendingHits, s.Misses, s.Evictions, s.Prefetches, s.PrefetchErrors)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "Objects", "Dimension", "Capacity", "ReadAhead", "Eviction",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	config := util.GetClientConfig()

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfThreads),
			strconv.Itoa(perfObjects),
			strconv.Itoa(perfDimension),
			strconv.Itoa(perfCapacity),
			strconv.Itoa(perfReadAhead),
			perfEviction,
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
