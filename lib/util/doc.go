// Package util provides small building blocks shared by the dMem packages.
//
// The package contains:
//   - MapHeap: a min-heap addressable by ID, used for LRU eviction in the cache
//   - MPSCQueue: a lock-free multi-producer single-consumer queue, used as the
//     send queue of stream transport connections
//   - SizeHistogram: exponential-bucket histogram for allocation sizes of memory pools
//   - GenerateSeed: random 64 bit values for access keys
package util
