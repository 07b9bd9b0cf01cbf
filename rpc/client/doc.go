// Package client implements the stream backend of remote.ITransport. RPCMemory
// maps every transport call to one request message for a memory server and
// sends it through any RPC client transport (tcp, unix, http).
//
// Error mapping:
//
//   - no connection, broken connection: remote.ErrConn (from the transport)
//   - request timed out: remote.ErrIO (from the transport)
//   - allocation rejected by the server: remote.ErrAlloc
//   - read, write or free rejected by the server: remote.ErrIO
//
// Usage Example:
//
//	config := common.ClientConfig{TimeoutSecond: 5}
//	mem := client.NewRPCMemory(0, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err := mem.Connect("localhost:7470"); err != nil {
//		return err
//	}
//	h, _ := mem.Allocate(64)
//	_ = mem.WriteSync(h, 0, []byte("hello"))
//	data, _ := mem.ReadAsync(h, 0, 5).Wait()
//
// To spread allocations over several memory servers, wrap the factory in a pool:
//
//	pool := remote.NewPool(client.NewRPCMemoryFactory(0, config, tcp.NewTCPClientTransport, serializer.NewBinarySerializer()))
//	_ = pool.Connect("mem-1:7470")
//	_ = pool.Connect("mem-2:7470")
//
// Thread Safety:
//
//	RPCMemory is safe for concurrent use. Async requests are multiplexed over
//	the connections of the transport.
package client
