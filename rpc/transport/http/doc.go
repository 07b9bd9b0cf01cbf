// Package http implements the RPC transport over plain HTTP.
//
// Every request is a POST to <endpoint>/<shardId> with the serialized message
// as body, the response body is the serialized response. Endpoints without a
// scheme get http:// prepended. Requests are balanced round-robin over all
// endpoints.
//
// The http transport is the slowest carrier since it has no request
// multiplexing of its own (SendAsync spawns a goroutine per request). It is
// useful for debugging with curl together with the json serializer.
package http
