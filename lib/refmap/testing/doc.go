// Package testing provides standardised tests and benchmarks for
// map implementations that satisfy the refmap.RefMap interface.
//
// The package contains:
//   - testing: A test suite for the RefMap contract, including the retention and
//     reclamation behavior of both policies (driven by Reclaim and SignalPressure)
//   - benchmark: Performance tests for common map operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(policy refmap.Policy, retentionSize int) refmap.RefMap[string, int] {
//		return NewMyMap[string, int](policy, retentionSize)
//	}
//
//	// Running the standard test suite
//	refmaptesting.RunRefMapTests(t, "MyMap", factory)
//
//	// Running performance benchmarks
//	refmaptesting.RunRefMapBenchmarks(b, "MyMap", factory)
package testing
