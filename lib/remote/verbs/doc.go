// Package verbs implements the zero-copy backend of remote.ITransport.
//
// The transport does not set up connections itself. It asks an IConnector for
// an IConnection and then drives it the way one drives a remote-memory queue
// pair: every read and write becomes a WorkRequest with a unique ID, and a
// background goroutine drains the completion channel and completes the
// matching async.Op. Pending requests are tracked in a concurrent map keyed
// by work request ID.
//
// Key Components:
//
//   - IConnector / IConnection: the boundary to the code that resolves
//     addresses and brings up the connection
//
//   - NewTransport: the remote.ITransport implementation
//
//   - Loopback: an in-process connector serving memstore pools, used by the
//     tests and by the perf command
//
// When the completion channel closes, every request still pending fails with
// a connection error. Requests are never retried.
package verbs
