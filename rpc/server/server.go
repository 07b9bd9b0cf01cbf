package server

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/rpc/common"
	"github.com/ValentinKolb/dMem/rpc/serializer"
	"github.com/ValentinKolb/dMem/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a shard of the RPC server: a memory pool and the adapter
// that handles requests for it
type serverShard struct {
	Pool    *memstore.Pool
	Adapter IRPCServerAdapter
	Stats   *ShardStats
}

// NewRPCServer creates a new memory server.
// It takes a config, transport and serializer as parameters.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		exporter:   newExporter(),
	}
}

// RPCServer serves the memory pools of its shards over an RPC transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	exporter   *exporter

	initOnce sync.Once
	initErr  error
	metrics  *http.Server
}

// Serve starts the RPC server.
// This function will also initialize the shards and start the transport layer.
// It blocks until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetrics()
	}

	return s.transport.Listen(s.config)
}

// Close stops the transport and the metrics endpoint
func (s *RPCServer) Close() error {
	err := s.transport.Close()
	if s.metrics != nil {
		err = errors.Join(err, s.metrics.Close())
	}
	s.shards.Range(func(_ uint64, shard serverShard) bool {
		shard.Stats.Stop()
		return true
	})
	return err
}

// Pool returns the memory pool of a shard
func (s *RPCServer) Pool(shardId uint64) (*memstore.Pool, bool) {
	if err := s.init(); err != nil {
		return nil, false
	}
	shard, ok := s.shards.Load(shardId)
	return shard.Pool, ok
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	s.initOnce.Do(func() {
		if len(s.config.Shards) == 0 {
			s.initErr = fmt.Errorf("no shards configured")
			return
		}

		for _, shardConfig := range s.config.Shards {
			if _, ok := s.shards.Load(shardConfig.ShardID); ok {
				s.initErr = fmt.Errorf("duplicate shard %d", shardConfig.ShardID)
				return
			}

			stats := NewShardStats()
			pool := memstore.NewPool(shardConfig.CapacityBytes)
			s.shards.Store(shardConfig.ShardID, serverShard{
				Pool:    pool,
				Adapter: NewMemoryServerAdapter(stats),
				Stats:   stats,
			})
			s.exporter.addShard(shardConfig.ShardID, pool, stats)
			Logger.Infof("created memory pool for shard %d (%d bytes)", shardConfig.ShardID, shardConfig.CapacityBytes)
		}

		s.registerTransportHandler()
		Logger.Infof("dMem setup completed successfully")
	})
	return s.initErr
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		shard, ok := s.shards.Load(shardId)
		if !ok {
			respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = shard.Adapter.Handle(&msg, shard.Pool)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// startMetrics serves the prometheus endpoint in the background
func (s *RPCServer) startMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.exporter.WritePrometheus(w)
	})
	s.metrics = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}
