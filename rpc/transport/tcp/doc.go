// Package tcp implements the framed RPC transport over TCP sockets.
//
// It only provides the connectors, all request handling (multiplexing, send
// queue, reconnects, worker pool) is inherited from package base. Socket
// options from common.SocketConf and common.TCPConf are applied to every
// connection on both sides.
//
// The default server buffer size is 512 KB, which fits a typical object write
// in a single pooled buffer.
package tcp
