// Package remote defines the transport capability dMem is built on: allocating,
// reading, writing and freeing regions of network-attached memory.
//
// Key Components:
//
//   - ITransport: the interface all backends implement, with blocking and
//     non-blocking (async.Op based) variants of every data path call
//
//   - Handle: opaque reference to a remote region (address plus access key)
//
//   - Error: typed transport error with the codes RetCConnError, RetCAllocError
//     and RetCIOError. Use errors.Is with ErrConn, ErrAlloc and ErrIO.
//
//   - Pool: an ITransport over several memory servers that assigns allocations
//     round-robin and routes every other call to the owning server
//
// Backends live in sub packages (verbs for the zero-copy backend) and in
// rpc/client (stream backend). The testing sub package contains a conformance
// suite every backend is run against.
//
// Usage Example:
//
//	pool := remote.NewPool(func() remote.ITransport {
//		return verbs.NewTransport(connector)
//	})
//	_ = pool.Connect("10.0.0.1:7471")
//	_ = pool.Connect("10.0.0.2:7471")
//
//	h, err := pool.Allocate(4096)
//	err = pool.WriteSync(h, 0, payload)
//	data, err := pool.ReadAsync(h, 0, 4096).Wait()
package remote
