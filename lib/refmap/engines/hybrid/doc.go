// Package hybrid implements refmap.RefMap as a hybrid reference-aware cache map: a
// concurrent map whose values are held under a weak or soft reclamation policy, combined
// with a bounded FIFO retention buffer that keeps recently touched values alive.
//
// Key Components:
//
//   - hybridMap: The map structure implementing refmap.RefMap. Every public operation
//     first drains the reclaim queue, then works against the backing store, then touches
//     the value (Get, Put and the views that go through Get).
//
//   - Cell: Wraps one value together with its key, a unique id, its weight and a pin count.
//     A cell resolves to its value until it is reclaimed. Reclaimed is terminal. The value
//     slot is a pointer, so a stored nil value is distinct from a reclaimed one.
//
//   - Store: The concurrent key → cell map and the structural source of truth for
//     presence. The default store is an xsync.MapOf.
//
//   - RetentionBuffer: A bounded, mutex-guarded FIFO of raw values. While a value sits in
//     the buffer its cell is pinned and cannot be reclaimed. Touching appends and trims the
//     oldest slots back to the capacity.
//
//   - Reclaimer: The memory manager of the map. It tracks all live cells, reclaims them
//     according to the policy and pushes every reclaimed cell onto the ReclaimQueue
//     (default: util.LockFreeQueue).
//
// Reclamation:
//
//   - Weak: Reclaim (or a background cycle) reclaims every unpinned cell. With
//     Options.WeakTierSize the cells are also tracked in a bounded LRU
//     (hashicorp/golang-lru), and a cell evicted from it is reclaimed right away
//     unless it is pinned.
//
//   - Soft: Values are only reclaimed by SignalPressure or when the summed weight of all
//     cells exceeds Options.SoftBudgetBytes. Over budget, unpinned cells are reclaimed
//     least recently touched first until the map is within budget again.
//
//   - Background: Options.ReclaimInterval runs a cycle periodically. Options.GCDriven runs
//     a cycle after every Go garbage collection. A GC-driven cycle of a soft map also
//     signals pressure when the live heap exceeds Options.HeapSoftLimitBytes.
//
// Purging:
//
// A reclaimed entry is removed from the store in one of two ways:
//  1. Drain: the next operation polls the reclaim queue until it is empty and deletes
//     every announced key, but only if the key still maps to the reclaimed cell. A
//     notification for a replaced cell never removes the newer entry.
//  2. Lookup: Get finds a cell that no longer resolves before its notification arrived,
//     reports a miss and deletes the entry (again compare-and-delete).
//
// Consistency:
//
// Each operation is atomic on its own. Size is an upper bound, it may count entries that
// were reclaimed but not purged yet. Values and Entries snapshot the keys first and then
// resolve each one, so entries reclaimed in between are omitted and the views are not
// atomic with respect to Keys.
//
// Metrics:
//
// Every map owns a VictoriaMetrics metrics.Set labelled with Options.Name (hits, misses,
// puts, removes, purges by path, reclaims by trigger and gauges for entries and retained
// values), exposed with WritePrometheus. Info reports the same counters together with
// the reclaimer backlog, an EWMA of the drain batch size and weight estimates.
package hybrid
