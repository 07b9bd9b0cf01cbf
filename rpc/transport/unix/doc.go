// Package unix implements the framed RPC transport over Unix domain sockets,
// for clients running on the same machine as the memory server.
//
// Like package tcp it only provides connectors and inherits everything else
// from package base. The endpoint is the path of the socket file, an existing
// file at that path is removed when the server starts listening.
//
// Default server buffer size: 64 KB.
package unix
