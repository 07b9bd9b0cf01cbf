// Package transport defines the interfaces of the dMem RPC transport layer.
//
// A transport moves opaque byte payloads tagged with a shard id between a
// client and a memory server. It knows nothing about the message format, that
// is the job of package serializer.
//
// Key Components:
//
//   - IRPCClientTransport: client side, with a blocking Send and a
//     non-blocking SendAsync returning an async.Op.
//
//   - IRPCServerTransport: server side, routes every request to one
//     ServerHandleFunc.
//
// Implementations live in the sub packages tcp, unix and http. tcp and unix
// share the framed, multiplexed implementation of package base.
package transport
