package perf

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dMem/cmd/util"
	"github.com/ValentinKolb/dMem/lib/cache"
	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/lib/remote/verbs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const loopbackEndpoint = "127.0.0.1:7471"

var (
	// PerfCmd runs benchmarks of the object store and the cache against memory servers
	PerfCmd = &cobra.Command{
		Use:               "perf",
		Short:             "Performance testing tool for dMem",
		Long:              "Stores float64 vectors in remote memory and measures the object store and the cache. With --transport loopback the benchmarks run against an in-process memory pool.",
		PersistentPreRunE: processPerfConfig,
		RunE:              run,
	}

	perfObjects   = 1000
	perfDimension = 128
	perfCapacity  = 256
	perfReadAhead = 8
	perfThreads   = 8
	perfEviction  = "fifo"
	perfSkip      = make([]string, 0)
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(PerfCmd)

	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get-async)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 8, util.WrapString("Number of goroutines to use for the benchmarks"))
	key = "objects"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("How many objects to store"))
	key = "dimension"
	PerfCmd.Flags().Int(key, 128, util.WrapString("Number of float64 values per object"))
	key = "capacity"
	PerfCmd.Flags().Int(key, 256, util.WrapString("Capacity of the cache in objects"))
	key = "read-ahead"
	PerfCmd.Flags().Int(key, 8, util.WrapString("Number of objects prefetched by the cache benchmarks"))
	key = "eviction"
	PerfCmd.Flags().String(key, "fifo", util.WrapString("Eviction policy of the cache (fifo, lru, random)"))
	key = "metrics"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Print the cache metrics in prometheus format after the benchmarks"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLoggers(); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfObjects = viper.GetInt("objects")
	perfDimension = viper.GetInt("dimension")
	perfCapacity = viper.GetInt("capacity")
	perfReadAhead = viper.GetInt("read-ahead")
	perfThreads = viper.GetInt("threads")
	perfEviction = viper.GetString("eviction")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfObjects <= 0 || perfDimension <= 0 || perfThreads <= 0 {
		return fmt.Errorf("objects, dimension and threads must be positive")
	}
	_, err := newEvictionPolicy()
	return err
}

// newTransport connects to the configured memory servers, or to an in-process pool for the loopback transport
func newTransport() (remote.ITransport, error) {
	if viper.GetString("transport") != "loopback" {
		p, err := util.NewMemoryPool()
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	connector := verbs.NewLoopbackConnector()
	address, port, err := remote.SplitEndpoint(loopbackEndpoint)
	if err != nil {
		return nil, err
	}
	connector.Register(address, port, memstore.NewPool(0))

	t := verbs.NewTransport(connector)
	if err := t.Connect(loopbackEndpoint); err != nil {
		return nil, err
	}
	return t, nil
}

func newEvictionPolicy() (cache.EvictionPolicy, error) {
	switch perfEviction {
	case "fifo":
		return cache.NewFIFOPolicy(), nil
	case "lru":
		return cache.NewLRUPolicy(), nil
	case "random":
		return cache.NewRandomPolicy(42), nil
	default:
		return nil, fmt.Errorf("invalid eviction policy %s (expected fifo, lru or random)", perfEviction)
	}
}
