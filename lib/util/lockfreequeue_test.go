package util

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// TestQueueBasicOperations tests push and poll on a single goroutine
func TestQueueBasicOperations(t *testing.T) {
	q := NewLockFreeQueue[int]()

	if _, ok := q.Poll(); ok {
		t.Fatal("Poll on an empty queue should return false")
	}

	for i := 0; i < 10; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	if q.Len() != 10 {
		t.Errorf("Expected length 10, got %d", q.Len())
	}

	for i := 0; i < 10; i++ {
		val, ok := q.Poll()
		if !ok {
			t.Fatalf("Expected item %d, queue was empty", i)
		}
		if *val != i {
			t.Errorf("Expected %d, got %d", i, *val)
		}
	}

	if _, ok := q.Poll(); ok {
		t.Error("Queue should be empty")
	}
	if q.Len() != 0 {
		t.Errorf("Expected length 0, got %d", q.Len())
	}
}

// TestQueuePushNil verifies nil values are rejected
func TestQueuePushNil(t *testing.T) {
	q := NewLockFreeQueue[int]()
	if q.Push(nil) {
		t.Error("Push(nil) should return false")
	}
	if q.Len() != 0 {
		t.Errorf("Expected length 0, got %d", q.Len())
	}
}

// TestQueueClose verifies that a closed queue rejects pushes but still delivers queued items
func TestQueueClose(t *testing.T) {
	q := NewLockFreeQueue[int]()

	v := 42
	q.Push(&v)
	q.Close()

	w := 43
	if q.Push(&w) {
		t.Error("Push after Close should return false")
	}

	val, ok := q.Poll()
	if !ok || *val != 42 {
		t.Errorf("Expected queued item 42 after Close, got %v (ok=%v)", val, ok)
	}
}

// TestQueueConcurrentProducersAndConsumers verifies no item is lost or duplicated
func TestQueueConcurrentProducersAndConsumers(t *testing.T) {
	q := NewLockFreeQueue[int]()

	const numProducers = 8
	const numConsumers = 4
	const itemsPerProducer = 2000
	totalItems := numProducers * itemsPerProducer

	var produced sync.WaitGroup
	produced.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer produced.Done()
			base := producerID * itemsPerProducer
			for i := 0; i < itemsPerProducer; i++ {
				val := base + i
				if !q.Push(&val) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	var (
		mu       sync.Mutex
		received = make(map[int]bool, totalItems)
		count    atomic.Int64
		done     atomic.Bool
		consumed sync.WaitGroup
	)

	consumed.Add(numConsumers)
	for c := 0; c < numConsumers; c++ {
		go func() {
			defer consumed.Done()
			for {
				val, ok := q.Poll()
				if !ok {
					if done.Load() && q.Len() == 0 {
						return
					}
					runtime.Gosched()
					continue
				}
				mu.Lock()
				if received[*val] {
					t.Errorf("Duplicate item received: %d", *val)
				}
				received[*val] = true
				mu.Unlock()
				count.Add(1)
			}
		}()
	}

	produced.Wait()
	done.Store(true)
	consumed.Wait()

	if int(count.Load()) != totalItems {
		t.Errorf("Expected %d items, received %d", totalItems, count.Load())
	}
}

func BenchmarkQueuePushPoll(b *testing.B) {
	q := NewLockFreeQueue[int]()
	b.RunParallel(func(pb *testing.PB) {
		v := 1
		for pb.Next() {
			q.Push(&v)
			q.Poll()
		}
	})
}
