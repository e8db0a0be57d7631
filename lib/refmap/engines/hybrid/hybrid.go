package hybrid

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/refmap/lib/refmap"
	"github.com/ValentinKolb/refmap/lib/util"
	"github.com/VividCortex/ewma"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("refmap")

// Number of tracked cells sampled for the weight statistics of Info
const infoWeightSamples = 1000

// --------------------------------------------------------------------------
// Core hybrid map structure
// --------------------------------------------------------------------------

// hybridMap implements refmap.RefMap on a concurrent store of cells, a retention buffer
// and a reclaimer that announces reclaimed cells on a notification queue
type hybridMap[K comparable, V any] struct {
	opts Options

	store     Store[K, V]
	queue     ReclaimQueue[K, V]
	retention *RetentionBuffer[V]
	reclaimer *Reclaimer[K, V]
	metrics   *mapMetrics

	clock atomic.Uint64 // logical time of the last touch

	drainMu  sync.Mutex
	drainAvg ewma.MovingAverage // average number of entries purged per non-empty drain

	closed atomic.Bool
}

// Option injects a component into a hybrid map
type Option[K comparable, V any] func(m *hybridMap[K, V])

// WithStore replaces the default xsync.MapOf store
func WithStore[K comparable, V any](store Store[K, V]) Option[K, V] {
	return func(m *hybridMap[K, V]) {
		m.store = store
	}
}

// WithReclaimQueue replaces the default lock-free reclaim queue.
// Tests use a queue that holds notifications back to exercise purging on lookup.
func WithReclaimQueue[K comparable, V any](queue ReclaimQueue[K, V]) Option[K, V] {
	return func(m *hybridMap[K, V]) {
		m.queue = queue
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewHybridMap creates a new hybrid map with the specified options (optional).
// Background reclamation is started if configured and stops on Close.
//
// Thread-safety: This function is not thread-safe and should only be called once
// per map during initialization.
func NewHybridMap[K comparable, V any](opts *Options, inject ...Option[K, V]) refmap.RefMap[K, V] {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	o := opts.normalize()

	m := &hybridMap[K, V]{
		opts:      o,
		retention: NewRetentionBuffer[V](o.RetentionSize),
		drainAvg:  ewma.NewMovingAverage(),
	}
	for _, apply := range inject {
		apply(m)
	}
	if m.store == nil {
		m.store = NewXSyncStore[K, V](o.InitialCapacity)
	}
	if m.queue == nil {
		m.queue = NewLockFreeReclaimQueue[K, V]()
	}

	m.metrics = newMapMetrics(o.Name,
		func() float64 { return float64(m.store.Size()) },
		func() float64 { return float64(m.retention.Len()) },
	)

	reclaimer, err := NewReclaimer[K, V](o.Policy, o.WeakTierSize, o.SoftBudgetBytes, m.queue, m.metrics.recordReclaim)
	if err != nil {
		// only possible for a non-positive tier size, which normalize rules out
		Logger.Panicf("failed to create reclaimer: %v", err)
	}
	m.reclaimer = reclaimer
	m.reclaimer.start(o.ReclaimInterval, o.GCDriven, o.HeapSoftLimitBytes)

	Logger.Debugf("created hybrid map %q (policy: %s, retention: %d)", o.Name, o.Policy, o.RetentionSize)

	return m
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put implements refmap.RefMap.Put
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Put(key K, value V) (V, bool, error) {
	var zero V
	if isNilKey(key) {
		return zero, false, refmap.ErrNilKey
	}
	if m.closed.Load() {
		return zero, false, refmap.ErrClosed
	}
	m.drain()

	c := NewCell(key, value, m.opts.Weigher(value))
	c.Touch(m.clock.Add(1))

	// the retention buffer pins the cell before the reclaimer can see it,
	// register before the swap so a concurrent replacement always unregisters after us
	m.retention.Touch(value, c)
	m.reclaimer.Register(c)

	old, loaded := m.store.Swap(key, c)
	m.metrics.puts.Inc()
	if !loaded {
		return zero, false, nil
	}

	m.reclaimer.Unregister(old)
	previous, ok := old.Resolve()
	return previous, ok, nil
}

// PutAll implements refmap.RefMap.PutAll
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// The pairs are not stored atomically.
func (m *hybridMap[K, V]) PutAll(source map[K]V) error {
	if m.closed.Load() {
		return refmap.ErrClosed
	}
	if len(source) == 0 {
		m.drain()
		return nil
	}
	for key, value := range source {
		if _, _, err := m.Put(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Remove implements refmap.RefMap.Remove
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Remove(key K) (V, bool) {
	var zero V
	if isNilKey(key) {
		return zero, false
	}
	m.drain()

	c, ok := m.store.LoadAndDelete(key)
	if !ok {
		return zero, false
	}
	m.metrics.removes.Inc()
	m.reclaimer.Unregister(c)
	return c.Resolve()
}

// Clear implements refmap.RefMap.Clear
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Puts running concurrently with Clear may survive it, and stay tracked by the reclaimer.
func (m *hybridMap[K, V]) Clear() {
	m.retention.Clear()
	m.drain()

	// entry by entry, so only cells that actually left the store stop being tracked
	m.store.Range(func(key K, c *Cell[K, V]) bool {
		if m.store.CompareAndDelete(key, c) {
			m.reclaimer.Unregister(c)
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

// Get implements refmap.RefMap.Get
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Get(key K) (V, bool) {
	var zero V
	if isNilKey(key) {
		return zero, false
	}
	m.drain()
	return m.get(key)
}

// ContainsKey implements refmap.RefMap.ContainsKey
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) ContainsKey(key K) bool {
	if isNilKey(key) {
		return false
	}
	m.drain()
	_, ok := m.store.Load(key)
	return ok
}

// ContainsValueFunc implements refmap.RefMap.ContainsValueFunc
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) ContainsValueFunc(match func(V) bool) bool {
	for _, v := range m.Values() {
		if match(v) {
			return true
		}
	}
	return false
}

// Size implements refmap.RefMap.Size
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Size() int {
	m.drain()
	return m.store.Size()
}

// IsEmpty implements refmap.RefMap.IsEmpty
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) IsEmpty() bool {
	return m.Size() == 0
}

// Keys implements refmap.RefMap.Keys
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Keys() []K {
	m.drain()
	return m.keys()
}

// Values implements refmap.RefMap.Values. Every value is resolved through the lookup
// path of Get, so it is touched and a reclaimed entry is purged on the way.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Values() []V {
	m.drain()
	keys := m.keys()
	values := make([]V, 0, len(keys))
	for _, key := range keys {
		if v, ok := m.get(key); ok {
			values = append(values, v)
		}
	}
	return values
}

// Entries implements refmap.RefMap.Entries, with the same lookup semantics as Values
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Entries() []refmap.Entry[K, V] {
	m.drain()
	keys := m.keys()
	entries := make([]refmap.Entry[K, V], 0, len(keys))
	for _, key := range keys {
		if v, ok := m.get(key); ok {
			entries = append(entries, refmap.Entry[K, V]{Key: key, Value: v})
		}
	}
	return entries
}

// --------------------------------------------------------------------------
// Reclaim Operations
// --------------------------------------------------------------------------

// Reclaim implements refmap.RefMap.Reclaim
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Reclaim() int {
	return m.reclaimer.Cycle()
}

// SignalPressure implements refmap.RefMap.SignalPressure
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) SignalPressure() int {
	return m.reclaimer.Pressure()
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

// Info implements refmap.RefMap.Info. It does not drain the reclaim queue, so
// PendingNotifications shows the current backlog.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *hybridMap[K, V]) Info() refmap.Info {
	weights := util.NewSizeHistogram()
	m.reclaimer.SampleWeights(infoWeightSamples, weights.AddSample)

	m.drainMu.Lock()
	avgDrain := m.drainAvg.Value()
	m.drainMu.Unlock()

	return refmap.Info{
		DbType:               refmap.ImplHybrid,
		Policy:               m.opts.Policy,
		Entries:              m.store.Size(),
		Retained:             m.retention.Len(),
		RetentionSize:        m.retention.Cap(),
		Tracked:              m.reclaimer.Len(),
		TrackedWeight:        m.reclaimer.Weight(),
		PendingNotifications: m.queue.Len(),
		Reclaimed:            m.metrics.reclaimedTotal(),
		Purged:               m.metrics.purgedTotal(),
		AvgDrainBatch:        avgDrain,
		Metadata: map[string]interface{}{
			"name":                  m.opts.Name,
			"weak_tier_size":        m.opts.WeakTierSize,
			"soft_budget_bytes":     m.opts.SoftBudgetBytes,
			"heap_soft_limit_bytes": m.opts.HeapSoftLimitBytes,
			"reclaim_interval":      m.opts.ReclaimInterval.String(),
			"gc_driven":             m.opts.GCDriven,
			"weight_samples":        weights.Count(),
			"avg_weight":            weights.AverageSize(),
			"median_weight":         weights.MedianEstimate(),
			"p95_weight":            weights.PercentileEstimate(95),
		},
	}
}

// WritePrometheus implements refmap.RefMap.WritePrometheus
func (m *hybridMap[K, V]) WritePrometheus(w io.Writer) {
	m.metrics.writePrometheus(w)
}

// Close implements refmap.RefMap.Close. It is safe to call Close more than once.
func (m *hybridMap[K, V]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.reclaimer.shutdown()
	m.queue.Close()
	Logger.Debugf("closed hybrid map %q", m.opts.Name)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// drain purges the entries of all reclaimed cells announced on the queue.
// A notification only removes its key if the key still maps to the reclaimed cell.
func (m *hybridMap[K, V]) drain() {
	purged := 0
	for {
		c, ok := m.queue.Poll()
		if !ok {
			break
		}
		if m.store.CompareAndDelete(c.Key(), c) {
			purged++
		}
	}
	if purged == 0 {
		return
	}

	m.metrics.purgedDrain.Add(purged)
	m.drainMu.Lock()
	m.drainAvg.Add(float64(purged))
	m.drainMu.Unlock()
}

// get is the lookup path of Get without the drain
func (m *hybridMap[K, V]) get(key K) (V, bool) {
	c, v, ok := m.lookup(key)
	if !ok {
		m.metrics.misses.Inc()
		return v, false
	}
	m.touch(c, v)
	m.metrics.hits.Inc()
	return v, true
}

// lookup loads and resolves the cell of key. A cell that no longer resolves is purged.
func (m *hybridMap[K, V]) lookup(key K) (*Cell[K, V], V, bool) {
	var zero V
	c, ok := m.store.Load(key)
	if !ok {
		return nil, zero, false
	}
	v, ok := c.Resolve()
	if !ok {
		if m.store.CompareAndDelete(key, c) {
			m.metrics.purgedLookup.Inc()
		}
		return nil, zero, false
	}
	return c, v, true
}

// touch marks a resolved value as recently used
func (m *hybridMap[K, V]) touch(c *Cell[K, V], v V) {
	c.Touch(m.clock.Add(1))
	m.retention.Touch(v, c)
	m.reclaimer.Touched(c)
}

// keys returns a snapshot of the keys in the store
func (m *hybridMap[K, V]) keys() []K {
	keys := make([]K, 0, m.store.Size())
	m.store.Range(func(key K, _ *Cell[K, V]) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// isNilKey reports whether key is a nil interface (only possible for interface key types)
func isNilKey[K comparable](key K) bool {
	return any(key) == nil
}
