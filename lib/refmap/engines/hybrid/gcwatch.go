package hybrid

import (
	"runtime"
	rtmetrics "runtime/metrics"
	"sync/atomic"
)

// gcWatcher signals after every Go garbage collection.
//
// It arms an unreachable sentinel with a cleanup. When a collection frees the sentinel
// the cleanup sends a signal and arms a new sentinel for the next collection.
type gcWatcher struct {
	signal  chan struct{}
	stopped atomic.Bool
}

// gcSentinel has a pointer field so it is not placed in the tiny allocator,
// where it could share a block with long-lived objects and never be freed
type gcSentinel struct {
	_ *gcWatcher
}

func newGCWatcher() *gcWatcher {
	w := &gcWatcher{signal: make(chan struct{}, 1)}
	w.arm()
	return w
}

// C returns the signal channel. Signals coalesce while nobody receives.
func (w *gcWatcher) C() <-chan struct{} {
	return w.signal
}

// Stop disarms the watcher after the next collection
func (w *gcWatcher) Stop() {
	w.stopped.Store(true)
}

func (w *gcWatcher) arm() {
	s := &gcSentinel{}
	runtime.AddCleanup(s, (*gcWatcher).collected, w)
}

func (w *gcWatcher) collected() {
	if w.stopped.Load() {
		return
	}
	select {
	case w.signal <- struct{}{}:
	default:
	}
	w.arm()
}

// liveHeapBytes returns the heap bytes marked live by the last collection
func liveHeapBytes() uint64 {
	sample := []rtmetrics.Sample{{Name: "/gc/heap/live:bytes"}}
	rtmetrics.Read(sample)
	if sample[0].Value.Kind() != rtmetrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
