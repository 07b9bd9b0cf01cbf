// Package server implements the dMem memory server. Each configured shard is a
// memstore.Pool with its own byte capacity, requests are routed to a shard by
// the shard id of the transport frame.
//
// Key Components:
//
//   - IRPCServerAdapter: turns a request message into pool calls. The memory
//     adapter handles alloc, free, read, write and stats.
//
//   - ShardStats: per shard operation timers, byte meters and an error counter
//     (go-metrics). A stats request returns them as JSON in the Meta field,
//     together with the pool state.
//
//   - Metrics endpoint: with ServerConfig.MetricsEndpoint set, GET /metrics
//     serves pool usage and request counts in the prometheus text format.
//
// Usage Example:
//
//	config := common.ServerConfig{
//		Shards: []common.ServerShard{
//			{ShardID: 0, CapacityBytes: 1 << 30},
//		},
//		Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:7470"},
//		LogLevel:  "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//		log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Requests are handled concurrently, pools serialize access per region.
//	Serve should be called only once.
package server
