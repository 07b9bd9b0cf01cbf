// Package cmd implements the command-line interface of dMem. It provides
// commands for running memory servers and for using them as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a memory server with one memory pool per shard
//   - mem: Raw region operations against memory servers (alloc, read, write, free, stats)
//   - perf: Benchmarks of the object store and the cache
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dmem -help for a list of all commands.
package cmd
