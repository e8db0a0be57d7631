package hybrid

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionBufferTrim(t *testing.T) {
	b := NewRetentionBuffer[int](3)

	for i := 0; i < 5; i++ {
		b.Touch(i, nil)
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
	assert.Equal(t, []int{2, 3, 4}, b.Snapshot())
}

func TestRetentionBufferRepeats(t *testing.T) {
	b := NewRetentionBuffer[string](3)
	b.Touch("a", nil)
	b.Touch("a", nil)
	b.Touch("b", nil)
	assert.Equal(t, []string{"a", "a", "b"}, b.Snapshot())
}

func TestRetentionBufferZeroSize(t *testing.T) {
	for _, size := range []int{0, -4} {
		b := NewRetentionBuffer[int](size)
		c := NewCell("k", 1, 0)

		b.Touch(1, c)
		assert.Equal(t, 0, b.Len())
		assert.Equal(t, 0, b.Cap())
		assert.False(t, c.Pinned(), "size %d", size)
	}
}

func TestRetentionBufferPins(t *testing.T) {
	b := NewRetentionBuffer[int](2)
	a := NewCell("a", 1, 0)
	c := NewCell("c", 2, 0)

	b.Touch(1, a)
	b.Touch(1, a)
	assert.True(t, a.Pinned())

	b.Touch(2, c)
	assert.True(t, a.Pinned(), "second slot of a is still held")

	b.Touch(2, c)
	assert.False(t, a.Pinned())
	assert.True(t, c.Pinned())

	b.Clear()
	assert.False(t, c.Pinned())
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}

func TestRetentionBufferReclaimedCell(t *testing.T) {
	b := NewRetentionBuffer[int](2)
	c := NewCell("k", 1, 0)
	require.True(t, c.reclaim())

	// the value is still buffered, no pin is tracked
	b.Touch(1, c)
	assert.Equal(t, 1, b.Len())
	b.Clear()
	assert.True(t, c.IsReclaimed())
}

func TestRetentionBufferConcurrentTouch(t *testing.T) {
	const size = 16
	b := NewRetentionBuffer[string](size)
	cells := make([]*Cell[string, string], 64)
	for i := range cells {
		cells[i] = NewCell(fmt.Sprint(i), "v", 0)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c := cells[(g*1000+i)%len(cells)]
				b.Touch("v", c)
				if l := b.Len(); l > size {
					t.Errorf("buffer exceeded its size: %d", l)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, size, b.Len())

	b.Clear()
	for _, c := range cells {
		assert.False(t, c.Pinned())
	}
}
