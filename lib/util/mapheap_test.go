package util

import (
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap()

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if _, _, ok := mh.PopMin(); ok {
		t.Error("PopMin on empty heap should return ok=false")
	}
}

// TestAddItemUpdatesPriority verifies that re-adding a key moves it instead of duplicating it
func TestAddItemUpdatesPriority(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(1, 300)

	if mh.Len() != 2 {
		t.Fatalf("Heap should have 2 items, has %d", mh.Len())
	}

	mh.AddItem(1, 50)
	key, priority, _ := mh.PopMin()
	if key != 1 || priority != 50 {
		t.Errorf("Min item should be (1,50), got (%d,%d)", key, priority)
	}

	key, priority, _ = mh.PopMin()
	if key != 2 || priority != 200 {
		t.Errorf("Next item should be (2,200), got (%d,%d)", key, priority)
	}
}

// TestPopMinOrder tests that items come out oldest tick first
func TestPopMinOrder(t *testing.T) {
	mh := NewMapHeap()

	items := []struct {
		key  uint64
		tick uint64
	}{
		{5, 50},
		{3, 30},
		{1, 10},
		{4, 40},
		{2, 20},
	}

	for _, it := range items {
		mh.AddItem(it.key, it.tick)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].tick < items[j].tick
	})

	for i, expected := range items {
		key, tick, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d items, expected %d items", i, len(items))
		}
		if key != expected.key || tick != expected.tick {
			t.Errorf("Pop %d: expected (%d,%d), got (%d,%d)", i, expected.key, expected.tick, key, tick)
		}
	}

	if mh.Len() != 0 {
		t.Errorf("Heap should be empty after popping all items, has %d items", mh.Len())
	}

	// popped keys are forgotten, adding them again inserts fresh items
	mh.AddItem(1, 1)
	if mh.Len() != 1 {
		t.Errorf("Expected 1 item after re-adding a popped key, got %d", mh.Len())
	}
}
