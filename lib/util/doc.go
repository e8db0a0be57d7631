// Package util provides the building blocks the hybrid reference map is assembled from.
//
// The package contains:
//   - lockfreequeue: A lock-free multi-producer queue with a non-blocking, mutex-serialized
//     consumer side. It carries reclaim notifications from the memory manager to the map.
//   - mapheap: A min-heap with key-based updates, used to pick the least recently touched
//     cells when the soft memory budget is exceeded
//   - statistics: A SizeHistogram for reporting the weight distribution of cached values
//
// None of the types depend on the map itself, so they can be tested in isolation.
package util
