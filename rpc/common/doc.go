// Package common provides the data structures shared by the dMem clients and
// memory servers: the wire message, the configuration structs and the logger.
//
// Key Components:
//
//   - Message: the single structure used for all RPC requests and responses.
//     Which fields are set depends on the MessageType (alloc, free, read,
//     write, stats). Use the NewXRequest / NewXResponse factories to build them.
//
//   - ServerConfig: shards (one memory pool each with a byte capacity),
//     listening transport, metrics endpoint and log level.
//
//   - ClientConfig: endpoints, connections per endpoint, socket options and the
//     per request timeout.
//
//   - Logger: implementation of the dragonboat logger.ILogger interface with a
//     consistent format, installed with InitLoggers.
package common
