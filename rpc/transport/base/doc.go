// Package base implements the framed, multiplexed stream transport shared by
// the tcp and unix carriers. Carriers only provide connectors
// (IClientConnector / IServerConnector), everything else lives here.
//
// Frame format (both directions):
//
//	[shardID:8][requestID:8][length:4][payload:length]
//
// Client:
//
//   - Several connections per endpoint, requests are balanced round-robin
//     over the connections that are currently up.
//   - Each connection has a lock-free send queue (util.MPSCQueue) drained by
//     one writer goroutine, and one reader goroutine completing the pending
//     async.Op of a request by its request ID.
//   - When a connection breaks, every pending request on it fails with a
//     ConnError and the reader re-establishes the connection with exponential
//     backoff. Requests themselves are never retried.
//   - With a timeout configured, a request without response fails with an
//     IOError after TimeoutSecond. A late response is dropped.
//
// Server:
//
//   - One goroutine per connection reads frames into pooled buffers
//     (sync.Pool) and hands each request to a worker goroutine, bounded by
//     WorkersPerConn. Responses are written under a per connection mutex and
//     may leave in a different order than the requests arrived.
//   - Close stops accepting, closes all connections and lets Listen return
//     once every connection handler finished.
package base
