package hybrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXSyncStoreCompareAndDelete(t *testing.T) {
	s := NewXSyncStore[string, int](0)

	old := NewCell("k", 1, 0)
	_, loaded := s.Swap("k", old)
	require.False(t, loaded)

	newer := NewCell("k", 2, 0)
	prev, loaded := s.Swap("k", newer)
	require.True(t, loaded)
	assert.Same(t, old, prev)

	// a stale cell does not delete the newer entry
	assert.False(t, s.CompareAndDelete("k", old))
	got, ok := s.Load("k")
	require.True(t, ok)
	assert.Same(t, newer, got)

	assert.True(t, s.CompareAndDelete("k", newer))
	_, ok = s.Load("k")
	assert.False(t, ok)

	// missing keys are not created
	assert.False(t, s.CompareAndDelete("missing", newer))
	assert.Equal(t, 0, s.Size())
}

func TestXSyncStoreRangeAndClear(t *testing.T) {
	s := NewXSyncStore[string, int](4)
	for i, k := range []string{"a", "b", "c"} {
		s.Swap(k, NewCell(k, i, 0))
	}

	seen := map[string]bool{}
	s.Range(func(key string, c *Cell[string, int]) bool {
		assert.Equal(t, key, c.Key())
		seen[key] = true
		return true
	})
	assert.Len(t, seen, 3)

	c, ok := s.LoadAndDelete("a")
	require.True(t, ok)
	assert.Equal(t, "a", c.Key())
	assert.Equal(t, 2, s.Size())

	// deleting while ranging is allowed
	s.Range(func(key string, c *Cell[string, int]) bool {
		assert.True(t, s.CompareAndDelete(key, c))
		return true
	})
	assert.Equal(t, 0, s.Size())
}

func TestLockFreeReclaimQueue(t *testing.T) {
	q := NewLockFreeReclaimQueue[string, int]()
	c := NewCell("k", 1, 0)

	require.True(t, q.Push(c))
	assert.Equal(t, 1, q.Len())

	got, ok := q.Poll()
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = q.Poll()
	assert.False(t, ok)

	q.Close()
	assert.False(t, q.Push(c))
}
