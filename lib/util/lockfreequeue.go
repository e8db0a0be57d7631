// Package util
//
// This file provides a lock-free multi-producer queue with a non-blocking consumer side.
//
// Features and Guarantees:
//
//   - Lock-Free Producers: Push() only uses atomic operations, so the memory manager can
//     publish notifications from any goroutine without contending with map operations
//   - Unbounded Size: the queue grows as needed, a notification is never dropped
//   - Non-Blocking Consumers: Poll() never waits; an empty queue returns immediately.
//     Consumers are serialized by a mutex, so any number of goroutines may drain
//   - Cheap Emptiness Check: Poll() on an empty queue does not take the consumer lock
//   - No Strict FIFO Guarantee: Under concurrent Push() operations, the exact ordering of items
//     is determined by which producer completes its operation first, not by which producer
//     started first.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeQueue is a lock-free multi-producer queue.
// Implementation uses a linked list of nodes with atomic operations;
// the consumer side is guarded by a mutex so that Poll can be called concurrently.
type LockFreeQueue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int64
	closed atomic.Bool

	consumerMu sync.Mutex
}

// NewLockFreeQueue creates a new, empty queue
func NewLockFreeQueue[T any]() *LockFreeQueue[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeQueue[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the item is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeQueue[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Appended. The tail CAS may fail if another producer already helped
				 move it forward, tail is still updated eventually.
				*/
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)
				return true
			}
		} else {
			// help move the tail if another producer appended but did not update it yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin first, then yield (reduces the thundering herd under contention)
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Poll removes and returns the oldest item. It never blocks waiting for items:
// if the queue is empty it returns (nil, false).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeQueue[T]) Poll() (*T, bool) {
	// fast path, no lock for the common empty case
	if q.head.Load().next.Load() == nil {
		return nil, false
	}

	q.consumerMu.Lock()
	defer q.consumerMu.Unlock()

	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}

	value := next.value

	// next becomes the new sentinel
	q.head.Store(next)
	next.value = nil
	q.length.Add(-1)

	return value, true
}

// Close prevents further pushes. Items already queued can still be polled.
func (q *LockFreeQueue[T]) Close() {
	q.closed.Store(true)
}

// Len returns the number of queued items. The value is exact when no push or poll is in flight.
func (q *LockFreeQueue[T]) Len() int {
	return int(q.length.Load())
}
