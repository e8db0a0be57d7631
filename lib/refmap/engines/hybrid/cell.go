package hybrid

import "sync/atomic"

// cellIDs hands out process-wide unique cell ids
var cellIDs atomic.Uint64

// cellReclaimed marks the terminal state of Cell.state
const cellReclaimed int32 = -1

// Cell wraps one value of the map together with its key.
// The key is kept so a reclaimed cell can be purged from the store by key.
//
// A cell is either live (state >= 0, the number of retention buffer slots holding its
// value) or reclaimed (state == -1). Only an unpinned cell can be reclaimed, and a
// reclaimed cell never becomes live again.
type Cell[K comparable, V any] struct {
	key    K
	id     uint64
	weight int

	value     atomic.Pointer[V]
	state     atomic.Int32
	lastTouch atomic.Uint64
}

// NewCell creates a live, unpinned cell
func NewCell[K comparable, V any](key K, value V, weight int) *Cell[K, V] {
	c := &Cell[K, V]{
		key:    key,
		id:     cellIDs.Add(1),
		weight: weight,
	}
	c.value.Store(&value)
	return c
}

// Key returns the key the cell was created for
func (c *Cell[K, V]) Key() K { return c.key }

// ID returns the unique id of the cell
func (c *Cell[K, V]) ID() uint64 { return c.id }

// Weight returns the weight (estimated bytes) of the value
func (c *Cell[K, V]) Weight() int { return c.weight }

// Resolve returns the value, or false once the cell was reclaimed.
// A stored nil value resolves to (nil, true).
func (c *Cell[K, V]) Resolve() (V, bool) {
	p := c.value.Load()
	if p == nil || c.state.Load() == cellReclaimed {
		var zero V
		return zero, false
	}
	return *p, true
}

// IsReclaimed reports whether the cell reached its terminal state
func (c *Cell[K, V]) IsReclaimed() bool {
	return c.state.Load() == cellReclaimed
}

// Pin marks the value as strongly held. It fails if the cell was already reclaimed.
func (c *Cell[K, V]) Pin() bool {
	for {
		s := c.state.Load()
		if s == cellReclaimed {
			return false
		}
		if c.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

// Unpin releases one Pin
func (c *Cell[K, V]) Unpin() {
	for {
		s := c.state.Load()
		if s <= 0 {
			return
		}
		if c.state.CompareAndSwap(s, s-1) {
			return
		}
	}
}

// Pinned reports whether at least one retention buffer slot holds the value
func (c *Cell[K, V]) Pinned() bool {
	return c.state.Load() > 0
}

// Touch records the logical time of the last access
func (c *Cell[K, V]) Touch(tick uint64) {
	c.lastTouch.Store(tick)
}

// LastTouch returns the logical time of the last access
func (c *Cell[K, V]) LastTouch() uint64 {
	return c.lastTouch.Load()
}

// reclaim moves an unpinned live cell to the reclaimed state and drops the value.
// It returns false if the cell is pinned or already reclaimed.
func (c *Cell[K, V]) reclaim() bool {
	if !c.state.CompareAndSwap(0, cellReclaimed) {
		return false
	}
	c.value.Store(nil)
	return true
}
