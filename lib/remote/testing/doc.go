// Package testing provides a conformance suite for remote.ITransport
// implementations and a call-counting transport wrapper.
//
// Every backend (zero-copy, stream over unix/tcp/http, pool) runs the same
// suite, so they are interchangeable for the object store and the cache.
//
// Example usage:
//
//	func TestTransport(t *testing.T) {
//		remotetesting.RunTransportTests(t, "MyBackend", func(t *testing.T) remotetesting.Target {
//			return remotetesting.Target{
//				Transport:   NewMyTransport(),
//				Endpoint:    startServer(t, remotetesting.PoolCapacity),
//				Unreachable: "127.0.0.1:1",
//			}
//		})
//	}
package testing
