package testing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/refmap/lib/refmap"
)

// MapFactory creates a new, empty map with the given policy and retention buffer size
type MapFactory func(policy refmap.Policy, retentionSize int) refmap.RefMap[string, int]

// RunRefMapTests runs a comprehensive test suite for a RefMap implementation.
func RunRefMapTests(t *testing.T, name string, factory MapFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(refmap.PolicyWeak, 100))
		})

		t.Run("WeakReclaim", func(t *testing.T) {
			testWeakReclaim(t, factory(refmap.PolicyWeak, 0))
		})

		t.Run("RetainedSurviveReclaim", func(t *testing.T) {
			testRetainedSurviveReclaim(t, factory(refmap.PolicyWeak, 2))
		})

		t.Run("RetentionEviction", func(t *testing.T) {
			testRetentionEviction(t, factory, 3)
		})

		t.Run("SoftSurvivesCycle", func(t *testing.T) {
			testSoftSurvivesCycle(t, factory(refmap.PolicySoft, 0))
		})

		t.Run("PinnedSurvivePressure", func(t *testing.T) {
			testPinnedSurvivePressure(t, factory(refmap.PolicySoft, 1))
		})

		t.Run("ValuesSkipReclaimed", func(t *testing.T) {
			testValuesSkipReclaimed(t, factory(refmap.PolicyWeak, 1))
		})

		t.Run("SizeUpperBound", func(t *testing.T) {
			testSizeUpperBound(t, factory(refmap.PolicyWeak, 0))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(refmap.PolicyWeak, 10))
		})

		t.Run("PutAll", func(t *testing.T) {
			testPutAll(t, factory(refmap.PolicyWeak, 10))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(refmap.PolicyWeak, 0))
		})

		t.Run("IsEmpty&Contains", func(t *testing.T) {
			testIsEmptyContains(t, factory(refmap.PolicySoft, 10))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(refmap.PolicyWeak, 10))
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, factory(refmap.PolicyWeak, 16))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func expectValue(t *testing.T, m refmap.RefMap[string, int], key string, want int) {
	t.Helper()
	got, ok := m.Get(key)
	if !ok {
		t.Errorf("Expected key %s to be present", key)
		return
	}
	if got != want {
		t.Errorf("Expected value %d for key %s, got %d", want, key, got)
	}
}

func expectAbsent(t *testing.T, m refmap.RefMap[string, int], key string) {
	t.Helper()
	if got, ok := m.Get(key); ok {
		t.Errorf("Expected key %s to be absent, got value %d", key, got)
	}
}

func mustPut(t *testing.T, m refmap.RefMap[string, int], key string, value int) {
	t.Helper()
	if _, _, err := m.Put(key, value); err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	prev, loaded, err := m.Put("a", 1)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if loaded {
		t.Errorf("Expected no previous value for a new key, got %d", prev)
	}
	expectValue(t, m, "a", 1)

	prev, loaded, err = m.Put("a", 2)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !loaded || prev != 1 {
		t.Errorf("Expected previous value 1, got %d (loaded=%v)", prev, loaded)
	}
	expectValue(t, m, "a", 2)

	expectAbsent(t, m, "nonexistent-key")

	if size := m.Size(); size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}
}

func testWeakReclaim(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)
	mustPut(t, m, "b", 2)

	if n := m.Reclaim(); n != 2 {
		t.Errorf("Expected 2 reclaimed values, got %d", n)
	}

	expectAbsent(t, m, "a")
	expectAbsent(t, m, "b")

	if size := m.Size(); size != 0 {
		t.Errorf("Expected size 0 after reclaim, got %d", size)
	}
}

// Retention 2: put a, b, c; a reclaim cycle only reclaims a
func testRetainedSurviveReclaim(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)
	mustPut(t, m, "b", 2)
	mustPut(t, m, "c", 3)

	if n := m.Reclaim(); n != 1 {
		t.Errorf("Expected 1 reclaimed value, got %d", n)
	}

	expectAbsent(t, m, "a")
	expectValue(t, m, "b", 2)
	expectValue(t, m, "c", 3)
}

// Retention N: after N+1 distinct puts only the first one is reclaimable
func testRetentionEviction(t *testing.T, factory MapFactory, n int) {
	m := factory(refmap.PolicyWeak, n)
	defer m.Close()

	for i := 0; i <= n; i++ {
		mustPut(t, m, fmt.Sprintf("key-%d", i), i)
	}

	if reclaimed := m.Reclaim(); reclaimed != 1 {
		t.Errorf("Expected 1 reclaimed value, got %d", reclaimed)
	}

	expectAbsent(t, m, "key-0")
	for i := 1; i <= n; i++ {
		expectValue(t, m, fmt.Sprintf("key-%d", i), i)
	}
}

func testSoftSurvivesCycle(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)

	if n := m.Reclaim(); n != 0 {
		t.Errorf("Expected a reclaim cycle to keep soft values, reclaimed %d", n)
	}
	expectValue(t, m, "a", 1)

	if n := m.SignalPressure(); n != 1 {
		t.Errorf("Expected 1 value reclaimed under pressure, got %d", n)
	}
	expectAbsent(t, m, "a")
}

func testPinnedSurvivePressure(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)
	mustPut(t, m, "b", 2)

	if n := m.SignalPressure(); n != 1 {
		t.Errorf("Expected 1 value reclaimed under pressure, got %d", n)
	}

	expectAbsent(t, m, "a")
	expectValue(t, m, "b", 2)
}

func testValuesSkipReclaimed(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)
	mustPut(t, m, "b", 2)
	mustPut(t, m, "c", 3)
	m.Reclaim()

	values := m.Values()
	if len(values) != 1 || values[0] != 3 {
		t.Errorf("Expected values [3], got %v", values)
	}

	keys := m.Keys()
	if len(keys) != 1 || keys[0] != "c" {
		t.Errorf("Expected keys [c], got %v", keys)
	}

	entries := m.Entries()
	if len(entries) != 1 || entries[0].Key != "c" || entries[0].Value != 3 {
		t.Errorf("Expected entries [c=3], got %v", entries)
	}
}

func testSizeUpperBound(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	for i := 0; i < 5; i++ {
		mustPut(t, m, fmt.Sprintf("key-%d", i), i)
	}
	if size := m.Size(); size != 5 {
		t.Errorf("Expected size 5, got %d", size)
	}

	m.Reclaim()

	if size := m.Size(); size > 5 {
		t.Errorf("Expected size to be at most 5, got %d", size)
	}
	if len(m.Values()) != 0 {
		t.Errorf("Expected no resolvable values after reclaim")
	}
	if size := m.Size(); size != 0 {
		t.Errorf("Expected size 0 after purging, got %d", size)
	}
}

func testClear(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	for i := 0; i < 5; i++ {
		mustPut(t, m, fmt.Sprintf("key-%d", i), i)
	}

	m.Clear()

	if size := m.Size(); size != 0 {
		t.Errorf("Expected size 0 after Clear, got %d", size)
	}
	if !m.IsEmpty() {
		t.Errorf("Expected map to be empty after Clear")
	}
	if retained := m.Info().Retained; retained != 0 {
		t.Errorf("Expected empty retention buffer after Clear, got %d values", retained)
	}
	expectAbsent(t, m, "key-0")

	// the map is usable after Clear
	mustPut(t, m, "key-0", 42)
	expectValue(t, m, "key-0", 42)
}

func testPutAll(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)

	if err := m.PutAll(nil); err != nil {
		t.Errorf("PutAll(nil) failed: %v", err)
	}
	if err := m.PutAll(map[string]int{}); err != nil {
		t.Errorf("PutAll(empty) failed: %v", err)
	}
	if size := m.Size(); size != 1 {
		t.Errorf("Expected an empty PutAll to change nothing, size is %d", size)
	}
	expectValue(t, m, "a", 1)

	if err := m.PutAll(map[string]int{"a": 10, "b": 2, "c": 3}); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	if size := m.Size(); size != 3 {
		t.Errorf("Expected size 3, got %d", size)
	}
	expectValue(t, m, "a", 10)
	expectValue(t, m, "b", 2)
	expectValue(t, m, "c", 3)
}

func testRemove(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	mustPut(t, m, "a", 1)

	prev, ok := m.Remove("a")
	if !ok || prev != 1 {
		t.Errorf("Expected Remove to return 1, got %d (ok=%v)", prev, ok)
	}
	if _, ok := m.Remove("a"); ok {
		t.Errorf("Expected second Remove to report absence")
	}
	expectAbsent(t, m, "a")

	// removing a reclaimed entry reports absence
	mustPut(t, m, "b", 2)
	m.Reclaim()
	if _, ok := m.Remove("b"); ok {
		t.Errorf("Expected Remove of a reclaimed value to report absence")
	}
	if m.ContainsKey("b") {
		t.Errorf("Expected key b to be gone")
	}
}

func testIsEmptyContains(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	if !m.IsEmpty() {
		t.Errorf("Expected new map to be empty")
	}
	if m.ContainsKey("a") {
		t.Errorf("Expected ContainsKey to be false on an empty map")
	}

	mustPut(t, m, "a", 1)
	mustPut(t, m, "b", 2)

	if m.IsEmpty() {
		t.Errorf("Expected map not to be empty")
	}
	if !m.ContainsKey("a") {
		t.Errorf("Expected ContainsKey(a) to be true")
	}
	if !m.ContainsValueFunc(func(v int) bool { return v == 2 }) {
		t.Errorf("Expected ContainsValueFunc to find value 2")
	}
	if m.ContainsValueFunc(func(v int) bool { return v == 9 }) {
		t.Errorf("Expected ContainsValueFunc not to find value 9")
	}

	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected keys [a b], got %v", keys)
	}
}

func testClose(t *testing.T, m refmap.RefMap[string, int]) {
	mustPut(t, m, "a", 1)

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	if _, _, err := m.Put("b", 2); !errors.Is(err, refmap.ErrClosed) {
		t.Errorf("Expected ErrClosed for Put after Close, got %v", err)
	}
	if err := m.PutAll(map[string]int{"c": 3}); !errors.Is(err, refmap.ErrClosed) {
		t.Errorf("Expected ErrClosed for PutAll after Close, got %v", err)
	}

	// reads keep working
	expectValue(t, m, "a", 1)
}

func testConcurrentAccess(t *testing.T, m refmap.RefMap[string, int]) {
	defer m.Close()

	const (
		numGoroutines = 8
		opsPerRoutine = 1000
	)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// reclaim in the background while the workers run
	reclaimDone := make(chan struct{})
	go func() {
		defer close(reclaimDone)
		for {
			select {
			case <-stop:
				return
			default:
				m.Reclaim()
			}
		}
	}()

	errs := make(chan error, numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < opsPerRoutine; i++ {
				key := fmt.Sprintf("g%d-key-%d", g, i%50)
				value := g*opsPerRoutine + i%50

				if _, _, err := m.Put(key, value); err != nil {
					errs <- err
					return
				}
				if got, ok := m.Get(key); ok && got != value {
					errs <- fmt.Errorf("key %s: expected %d, got %d", key, value, got)
					return
				}
				if i%7 == 0 {
					m.Remove(key)
				}
				if i%100 == 0 {
					m.Values()
				}
			}
		}(g)
	}

	wg.Wait()
	close(stop)
	<-reclaimDone
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	if size := m.Size(); size > numGoroutines*50 {
		t.Errorf("Expected at most %d entries, got %d", numGoroutines*50, size)
	}
	for _, v := range m.Values() {
		if v < 0 || v >= numGoroutines*opsPerRoutine {
			t.Errorf("Unexpected value %d", v)
		}
	}
}
