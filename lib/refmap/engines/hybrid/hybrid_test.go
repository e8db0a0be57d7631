package hybrid

import (
	"bytes"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/refmap/lib/refmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heldQueue keeps reclaim notifications back until release is called
type heldQueue[K comparable, V any] struct {
	mu     sync.Mutex
	held   []*Cell[K, V]
	ready  []*Cell[K, V]
	closed bool
}

func (q *heldQueue[K, V]) Push(c *Cell[K, V]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held = append(q.held, c)
	return true
}

func (q *heldQueue[K, V]) Poll() (*Cell[K, V], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil, false
	}
	c := q.ready[0]
	q.ready = q.ready[1:]
	return c, true
}

func (q *heldQueue[K, V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *heldQueue[K, V]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *heldQueue[K, V]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *heldQueue[K, V]) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, q.held...)
	q.held = nil
}

// clearOnSwapStore runs clear once, right before the next Swap reaches the store
type clearOnSwapStore[K comparable, V any] struct {
	Store[K, V]
	clear func()
}

func (s *clearOnSwapStore[K, V]) Swap(key K, c *Cell[K, V]) (*Cell[K, V], bool) {
	if fn := s.clear; fn != nil {
		s.clear = nil
		fn()
	}
	return s.Store.Swap(key, c)
}

func weakOptions(retentionSize int) *Options {
	opts := DefaultOptions()
	opts.RetentionSize = retentionSize
	return opts
}

// --------------------------------------------------------------------------
// Purging
// --------------------------------------------------------------------------

func TestPurgeOnLookupBeforeNotification(t *testing.T) {
	queue := &heldQueue[string, int]{}
	m := NewHybridMap[string, int](weakOptions(0), WithReclaimQueue[string, int](queue))
	defer m.Close()

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)
	require.Equal(t, 1, m.Reclaim())

	// structurally present until someone looks at it
	assert.Equal(t, 1, m.Size())
	assert.True(t, m.ContainsKey("a"))

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Size())
	assert.EqualValues(t, 1, m.Info().Purged)

	// the late notification finds nothing to purge
	queue.release()
	assert.Equal(t, 0, m.Size())
	assert.EqualValues(t, 1, m.Info().Purged)
}

func TestLateNotificationKeepsReplacement(t *testing.T) {
	queue := &heldQueue[string, int]{}
	m := NewHybridMap[string, int](weakOptions(0), WithReclaimQueue[string, int](queue))
	defer m.Close()

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)
	require.Equal(t, 1, m.Reclaim())

	prev, loaded, err := m.Put("a", 2)
	require.NoError(t, err)
	assert.False(t, loaded, "a reclaimed previous value is not returned")
	assert.Zero(t, prev)

	queue.release()

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestClearBetweenRegisterAndSwap(t *testing.T) {
	store := &clearOnSwapStore[string, int]{Store: NewXSyncStore[string, int](0)}
	m := NewHybridMap[string, int](weakOptions(0), WithStore[string, int](store))
	defer m.Close()
	store.clear = m.Clear

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)

	// the put survives the clear and is still tracked
	info := m.Info()
	assert.Equal(t, 1, info.Entries)
	assert.Equal(t, 1, info.Tracked)
	assert.EqualValues(t, DefaultWeigher(1), info.TrackedWeight)

	assert.Equal(t, 1, m.Reclaim())
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Size())
	assert.Equal(t, 0, m.Info().Tracked)
}

func TestClearUnregistersCells(t *testing.T) {
	m := NewHybridMap[string, int](weakOptions(0))
	defer m.Close()

	for _, k := range []string{"a", "b"} {
		_, _, err := m.Put(k, 1)
		require.NoError(t, err)
	}
	m.Clear()

	info := m.Info()
	assert.Equal(t, 0, info.Tracked)
	assert.EqualValues(t, 0, info.TrackedWeight)
	assert.Equal(t, 0, m.Reclaim())
}

func TestEmptyPutAllDrains(t *testing.T) {
	for name, source := range map[string]map[string]int{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			queue := &heldQueue[string, int]{}
			m := NewHybridMap[string, int](weakOptions(0), WithReclaimQueue[string, int](queue))
			defer m.Close()

			_, _, err := m.Put("a", 1)
			require.NoError(t, err)
			require.Equal(t, 1, m.Reclaim())
			queue.release()

			info := m.Info()
			require.Equal(t, 1, info.Entries)
			require.Equal(t, 1, info.PendingNotifications)

			require.NoError(t, m.PutAll(source))

			info = m.Info()
			assert.Equal(t, 0, info.Entries)
			assert.Equal(t, 0, info.PendingNotifications)
			assert.EqualValues(t, 1, info.Purged)
		})
	}
}

func TestDrainAverage(t *testing.T) {
	m := NewHybridMap[string, int](weakOptions(0))
	defer m.Close()

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := m.Put(k, 1)
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Reclaim())
	assert.Equal(t, 3, m.Info().PendingNotifications)

	assert.Equal(t, 0, m.Size())

	info := m.Info()
	assert.Equal(t, 0, info.PendingNotifications)
	assert.EqualValues(t, 3, info.Purged)
	assert.InDelta(t, 3.0, info.AvgDrainBatch, 0.001)
}

// --------------------------------------------------------------------------
// Keys and values
// --------------------------------------------------------------------------

func TestNilKeyRejected(t *testing.T) {
	m := NewHybridMap[any, int](nil)
	defer m.Close()

	_, _, err := m.Put(nil, 1)
	assert.ErrorIs(t, err, refmap.ErrNilKey)

	err = m.PutAll(map[any]int{nil: 1})
	assert.ErrorIs(t, err, refmap.ErrNilKey)

	_, ok := m.Get(nil)
	assert.False(t, ok)
	assert.False(t, m.ContainsKey(nil))
	_, ok = m.Remove(nil)
	assert.False(t, ok)
	assert.True(t, m.IsEmpty())

	// non-nil interface keys work as usual
	_, _, err = m.Put(42, 1)
	require.NoError(t, err)
	v, ok := m.Get(42)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestNilValueStored(t *testing.T) {
	m := NewHybridMap[string, []byte](nil)
	defer m.Close()

	_, _, err := m.Put("empty", nil)
	require.NoError(t, err)

	v, ok := m.Get("empty")
	assert.True(t, ok, "a nil value is a value, not a reclaimed one")
	assert.Nil(t, v)

	prev, loaded := m.Remove("empty")
	assert.True(t, loaded)
	assert.Nil(t, prev)
}

// --------------------------------------------------------------------------
// Reclamation
// --------------------------------------------------------------------------

func TestSoftBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.Policy = refmap.PolicySoft
	opts.RetentionSize = 0
	opts.SoftBudgetBytes = 10
	m := NewHybridMap[string, string](opts)
	defer m.Close()

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := m.Put(k, "xxxx")
		require.NoError(t, err)
	}

	// the third value exceeds the budget, the least recently touched one goes
	_, ok := m.Get("a")
	assert.False(t, ok)
	_, ok = m.Get("b")
	assert.True(t, ok)
	_, ok = m.Get("c")
	assert.True(t, ok)

	info := m.Info()
	assert.EqualValues(t, 8, info.TrackedWeight)
	assert.Equal(t, 2, info.Tracked)

	// within budget, a cycle keeps everything
	assert.Equal(t, 0, m.Reclaim())
}

func TestSoftBudgetPrefersStaleValues(t *testing.T) {
	opts := DefaultOptions()
	opts.Policy = refmap.PolicySoft
	opts.RetentionSize = 0
	opts.SoftBudgetBytes = 10
	m := NewHybridMap[string, string](opts)
	defer m.Close()

	for _, k := range []string{"a", "b"} {
		_, _, err := m.Put(k, "xxxx")
		require.NoError(t, err)
	}
	_, ok := m.Get("a") // a is now more recent than b
	require.True(t, ok)

	_, _, err := m.Put("c", "xxxx")
	require.NoError(t, err)

	_, ok = m.Get("b")
	assert.False(t, ok)
	_, ok = m.Get("a")
	assert.True(t, ok)
}

func TestWeakTier(t *testing.T) {
	opts := weakOptions(0)
	opts.WeakTierSize = 2
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	for i, k := range []string{"a", "b", "c"} {
		_, _, err := m.Put(k, i)
		require.NoError(t, err)
	}

	// no reclaim cycle needed, a fell out of the tier
	_, ok := m.Get("a")
	assert.False(t, ok)

	_, ok = m.Get("b") // b becomes the most recent tier entry
	require.True(t, ok)

	_, _, err := m.Put("d", 3)
	require.NoError(t, err)

	_, ok = m.Get("c")
	assert.False(t, ok)
	_, ok = m.Get("b")
	assert.True(t, ok)
	_, ok = m.Get("d")
	assert.True(t, ok)
}

func TestWeakTierKeepsPinned(t *testing.T) {
	opts := weakOptions(3)
	opts.WeakTierSize = 1
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	for i, k := range []string{"a", "b", "c"} {
		_, _, err := m.Put(k, i)
		require.NoError(t, err)
	}

	// all values are held by the retention buffer
	assert.Equal(t, 3, m.Size())
	for _, k := range []string{"a", "b", "c"} {
		_, ok := m.Get(k)
		assert.True(t, ok, k)
	}
}

func TestReclaimInterval(t *testing.T) {
	opts := weakOptions(0)
	opts.ReclaimInterval = 5 * time.Millisecond
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !m.ContainsKey("a")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGCDriven(t *testing.T) {
	opts := weakOptions(0)
	opts.GCDriven = true
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		runtime.GC()
		return !m.ContainsKey("a")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGCDrivenSoftHeapLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.Policy = refmap.PolicySoft
	opts.RetentionSize = 0
	opts.GCDriven = true
	opts.HeapSoftLimitBytes = 1 // always exceeded
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		runtime.GC()
		return !m.ContainsKey("a")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCloseStopsBackgroundReclaim(t *testing.T) {
	opts := weakOptions(0)
	opts.ReclaimInterval = time.Millisecond
	m := NewHybridMap[string, int](opts)

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// reads after Close see no further reclamation
	reclaimedBefore := m.Info().Reclaimed
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, reclaimedBefore, m.Info().Reclaimed)
}

func TestCloseStopsReclamation(t *testing.T) {
	queue := &heldQueue[string, int]{}
	m := NewHybridMap[string, int](weakOptions(0), WithReclaimQueue[string, int](queue))

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.True(t, queue.isClosed())

	assert.Equal(t, 0, m.Reclaim())
	assert.Equal(t, 0, m.SignalPressure())

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func TestInfo(t *testing.T) {
	opts := weakOptions(2)
	opts.Name = "info-test"
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	for i, k := range []string{"a", "b", "c"} {
		_, _, err := m.Put(k, i)
		require.NoError(t, err)
	}

	info := m.Info()
	assert.Equal(t, refmap.ImplHybrid, info.DbType)
	assert.Equal(t, refmap.PolicyWeak, info.Policy)
	assert.Equal(t, 3, info.Entries)
	assert.Equal(t, 2, info.Retained)
	assert.Equal(t, 2, info.RetentionSize)
	assert.Equal(t, 3, info.Tracked)

	metadata, ok := info.Metadata.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "info-test", metadata["name"])
	assert.EqualValues(t, 3, metadata["weight_samples"])

	require.Equal(t, 1, m.Reclaim())
	info = m.Info()
	assert.EqualValues(t, 1, info.Reclaimed)
	assert.Equal(t, 2, info.Tracked)
}

func TestWritePrometheus(t *testing.T) {
	opts := weakOptions(10)
	opts.Name = "metrics-test"
	m := NewHybridMap[string, int](opts)
	defer m.Close()

	_, _, err := m.Put("a", 1)
	require.NoError(t, err)
	m.Get("a")
	m.Get("missing")
	m.Remove("a")

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `refmap_hits_total{cache="metrics-test"} 1`)
	assert.Contains(t, out, `refmap_misses_total{cache="metrics-test"} 1`)
	assert.Contains(t, out, `refmap_puts_total{cache="metrics-test"} 1`)
	assert.Contains(t, out, `refmap_removes_total{cache="metrics-test"} 1`)
	assert.Contains(t, out, `refmap_entries{cache="metrics-test"} 0`)
	assert.Contains(t, out, `refmap_reclaimed_total{cache="metrics-test",trigger="pressure"} 0`)
	assert.Contains(t, out, `refmap_purged_total{cache="metrics-test",path="drain"} 0`)
}

func TestMapsDoNotShareMetrics(t *testing.T) {
	a := NewHybridMap[string, int](nil)
	defer a.Close()
	b := NewHybridMap[string, int](nil)
	defer b.Close()

	_, _, err := a.Put("k", 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	b.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `refmap_puts_total{cache="default"} 0`)
}

func TestDefaultWeigher(t *testing.T) {
	assert.Equal(t, 0, DefaultWeigher(nil))
	assert.Equal(t, 5, DefaultWeigher("hello"))
	assert.Equal(t, 3, DefaultWeigher([]byte{1, 2, 3}))
	assert.Equal(t, 8, DefaultWeigher(int64(1)))
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{RetentionSize: -5, WeakTierSize: -1, SoftBudgetBytes: -1}.normalize()
	assert.Equal(t, 0, o.RetentionSize)
	assert.Equal(t, 0, o.WeakTierSize)
	assert.EqualValues(t, 0, o.SoftBudgetBytes)
	assert.Equal(t, minInitialCapacity, o.InitialCapacity)
	assert.Equal(t, defaultName, o.Name)
	assert.NotNil(t, o.Weigher)

	o = Options{RetentionSize: 500}.normalize()
	assert.Equal(t, 500, o.InitialCapacity)
}
