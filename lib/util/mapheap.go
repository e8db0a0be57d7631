// Package util
//
// This file provides the priority queue used to pick reclamation victims.
//
// A MapHeap is a binary min-heap of (key, priority) pairs combined with a map from
// key to heap slot. The reclaimer fills it with cell ids keyed by their last touch
// tick, then pops the least recently touched cells first until the soft memory
// budget is met again.
//
//   - O(log n) for AddItem and PopMin
//   - O(1) key lookup, so re-adding a key updates its priority in place
//     instead of inserting a duplicate
//
// Note: This implementation is not thread-safe. The reclaimer only uses it while
// holding its registry lock.
//
// Example usage:
//
//	h := NewMapHeap()
//	h.AddItem(cellID, lastTouch)
//	for h.Len() > 0 {
//	    id, tick, _ := h.PopMin()
//	    // reclaim the cell with this id
//	}
package util

import (
	"container/heap"
)

// heapItem is a key with its priority and current slot in the heap
type heapItem struct {
	Key      uint64
	Priority uint64
	index    int // maintained by the heap.Interface methods
}

// MapHeap is a min-heap by priority that also supports key-based updates
type MapHeap struct {
	items []*heapItem
	byKey map[uint64]*heapItem
}

// NewMapHeap creates an empty heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items: make([]*heapItem, 0),
		byKey: make(map[uint64]*heapItem),
	}
}

// Len returns the number of items (part of heap.Interface)
func (h *MapHeap) Len() int { return len(h.items) }

// Less orders by ascending priority (part of heap.Interface)
func (h *MapHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push appends an item (part of heap.Interface, use AddItem instead)
func (h *MapHeap) Push(x interface{}) {
	it := x.(*heapItem)
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.byKey[it.Key] = it
}

// Pop removes the last item (part of heap.Interface, use PopMin instead)
func (h *MapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	h.items = old[:n-1]
	delete(h.byKey, it.Key)
	return it
}

// AddItem adds key with the given priority, or updates the priority if key is present
func (h *MapHeap) AddItem(key, priority uint64) {
	if it, exists := h.byKey[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &heapItem{Key: key, Priority: priority})
}

// PopMin removes and returns the key with the lowest priority
func (h *MapHeap) PopMin() (key uint64, priority uint64, ok bool) {
	if len(h.items) == 0 {
		return 0, 0, false
	}
	it := heap.Pop(h).(*heapItem)
	return it.Key, it.Priority, true
}
