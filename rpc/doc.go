// Package rpc connects clients to memory servers. Clients reach the memory
// pools of a server through an ordinary stream connection, one request per
// region operation.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, configuration structures and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPCMemory, the remote.ITransport backed by a memory server.
//
//   - server: The memory server, one memstore.Pool per shard, with a
//     prometheus endpoint for pool usage and request latencies.
package rpc
