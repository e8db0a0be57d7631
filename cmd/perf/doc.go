// Package perf implements the perf command, which benchmarks an in-process cache with
// testing.Benchmark and records per-operation latencies with go-metrics timers.
package perf
