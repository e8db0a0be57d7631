// Package refmap defines the RefMap interface: a concurrent key-value map whose values
// are held under a weak or soft reclamation policy and can disappear without an explicit
// Remove.
//
// Implementations live in refmap/engines, a conformance test suite and benchmarks in
// refmap/testing.
//
// Reclamation is explicit. Go has no soft references, and weak pointers only help for
// pointer values, so a RefMap models the garbage collector as a memory manager owned by
// the map:
//
//   - Weak: every value that is not held by the retention buffer is reclaimed by the next
//     reclaim cycle (Reclaim, a periodic cycle or a cycle after a Go GC).
//   - Soft: values are only reclaimed on a memory-pressure signal (SignalPressure) or when
//     a configured memory budget is exceeded.
//
// Code that would "force a garbage collection" to observe reclamation calls Reclaim or
// SignalPressure instead.
//
// Example usage:
//
//	m := hybrid.NewHybridMap[string, []byte](hybrid.DefaultOptions())
//	defer m.Close()
//
//	_, _, _ = m.Put("user:1", payload)
//	if v, ok := m.Get("user:1"); ok {
//		// use v
//	}
package refmap
