// Package memstore implements the memory pool of a dMem memory server.
//
// A Pool hands out zeroed byte regions identified by an address and protected
// by a random access key. Every data path call must present the key of the
// region, and every access is bounds checked against the region size.
//
// The pool is used in two places:
//   - by rpc/server, where every shard of a memory server owns one pool
//   - by the loopback connector of the verbs package, which emulates a
//     remote-memory connection inside the process
//
// Nothing is persisted. Memory is given back when a region is freed.
package memstore
