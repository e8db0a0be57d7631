// Package cmd implements the command-line interface of refmap.
//
// The package is organized into several subpackages:
//
//   - serve: Serve a cache over HTTP
//   - perf: Benchmark an in-process cache
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All cache flags can also be set as environment variables with the REFMAP_ prefix
// (e.g. REFMAP_RETENTION_SIZE=50), also read from .env and .env.local.
//
// See refmap -help for a list of all commands.
package cmd
