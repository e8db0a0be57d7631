package hybrid

import "sync"

// Pinner is implemented by whatever keeps a value reclaimable (a Cell).
// The retention buffer pins a value while it holds it.
type Pinner interface {
	Pin() bool
	Unpin()
}

type retained[V any] struct {
	value V
	pin   Pinner
}

// RetentionBuffer is a bounded FIFO of recently touched values.
//
// It holds the raw values, so a value stays strongly reachable while it is in the buffer
// even if its map entry was replaced or removed. Values may repeat. When the buffer is
// over capacity the oldest slot is dropped and its pin is released.
//
// Thread-safety: all methods are guarded by one mutex. Lock hold time is bounded by the
// capacity, so it should stay small (default 100).
type RetentionBuffer[V any] struct {
	mu    sync.Mutex
	size  int
	ring  []retained[V] // len(ring) == size+1, one spare slot for append-then-trim
	head  int
	count int
}

// NewRetentionBuffer creates a buffer holding at most size values (negative = 0)
func NewRetentionBuffer[V any](size int) *RetentionBuffer[V] {
	size = max(size, 0)
	return &RetentionBuffer[V]{
		size: size,
		ring: make([]retained[V], size+1),
	}
}

// Touch appends value and trims the buffer back to its capacity.
// If p is not nil it is pinned for as long as the value stays in the buffer.
func (b *RetentionBuffer[V]) Touch(value V, p Pinner) {
	if p != nil && !p.Pin() {
		// reclaimed concurrently, keep the value but do not track a pin
		p = nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[(b.head+b.count)%len(b.ring)] = retained[V]{value: value, pin: p}
	b.count++

	for b.count > b.size {
		b.dropOldest()
	}
}

// dropOldest removes the oldest slot. Caller must hold b.mu.
func (b *RetentionBuffer[V]) dropOldest() {
	r := b.ring[b.head]
	b.ring[b.head] = retained[V]{} // release the value
	b.head = (b.head + 1) % len(b.ring)
	b.count--

	if r.pin != nil {
		r.pin.Unpin()
	}
}

// Clear empties the buffer and releases all pins
func (b *RetentionBuffer[V]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count > 0 {
		b.dropOldest()
	}
	b.head = 0
}

// Len returns the number of values held
func (b *RetentionBuffer[V]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the capacity
func (b *RetentionBuffer[V]) Cap() int {
	return b.size
}

// Snapshot returns the held values from oldest to newest
func (b *RetentionBuffer[V]) Snapshot() []V {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]V, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(b.head+i)%len(b.ring)].value)
	}
	return out
}
