// Package async provides Op, the single future type used for all non-blocking
// operations in dMem (remote reads and writes, async object store calls and
// cache prefetches).
//
// An Op exposes only two ways to observe completion:
//
//   - Wait: blocks until the result is final and returns it
//   - TryWait: non-blocking poll, safe to call any number of times
//
// How an operation is completed (a goroutine, a completion queue, a response
// reader of a stream connection) is hidden behind New, Complete and Fail.
//
// Usage:
//
//	op := async.Go(func() (int, error) {
//		return 42, nil
//	})
//
//	doubled := async.Then(op, func(v int) (int, error) {
//		return v * 2, nil
//	})
//
//	v, err := doubled.Wait() // 84, nil
//
// There is no cancellation. Once issued, an operation runs to completion or failure.
package async
