package hybrid

import (
	"github.com/ValentinKolb/refmap/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Backing store
// --------------------------------------------------------------------------

// Store is the concurrent key → cell map behind a hybrid map.
// Every method must be safe for concurrent use and atomic on its own.
type Store[K comparable, V any] interface {
	Load(key K) (*Cell[K, V], bool)
	// Swap stores cell under key and returns the cell it replaced
	Swap(key K, cell *Cell[K, V]) (previous *Cell[K, V], loaded bool)
	LoadAndDelete(key K) (*Cell[K, V], bool)
	// CompareAndDelete deletes key only if it still maps to cell
	CompareAndDelete(key K, cell *Cell[K, V]) bool
	Range(fn func(key K, cell *Cell[K, V]) bool)
	Size() int
}

// xsyncStore is the default Store on top of xsync.MapOf
type xsyncStore[K comparable, V any] struct {
	m *xsync.MapOf[K, *Cell[K, V]]
}

// NewXSyncStore creates the default store, presized for capacity entries
func NewXSyncStore[K comparable, V any](capacity int) Store[K, V] {
	return &xsyncStore[K, V]{
		m: xsync.NewMapOf[K, *Cell[K, V]](xsync.WithPresize(capacity)),
	}
}

func (s *xsyncStore[K, V]) Load(key K) (*Cell[K, V], bool) {
	return s.m.Load(key)
}

func (s *xsyncStore[K, V]) Swap(key K, cell *Cell[K, V]) (*Cell[K, V], bool) {
	return s.m.LoadAndStore(key, cell)
}

func (s *xsyncStore[K, V]) LoadAndDelete(key K) (*Cell[K, V], bool) {
	return s.m.LoadAndDelete(key)
}

func (s *xsyncStore[K, V]) CompareAndDelete(key K, cell *Cell[K, V]) bool {
	deleted := false
	s.m.Compute(key, func(current *Cell[K, V], loaded bool) (*Cell[K, V], bool) {
		if !loaded {
			return current, true // set delete to true because else the value will be created
		}
		if current != cell {
			// replaced in the meantime, keep the newer cell
			return current, false
		}
		deleted = true
		return current, true
	})
	return deleted
}

func (s *xsyncStore[K, V]) Range(fn func(key K, cell *Cell[K, V]) bool) {
	s.m.Range(fn)
}

func (s *xsyncStore[K, V]) Size() int {
	return s.m.Size()
}

// --------------------------------------------------------------------------
// Reclaim notification queue
// --------------------------------------------------------------------------

// ReclaimQueue carries reclaimed cells from the memory manager to the map.
// Push may be called from any goroutine. Poll must never block.
// The map closes its queue when it is closed, pushes after that may be dropped.
type ReclaimQueue[K comparable, V any] interface {
	Push(cell *Cell[K, V]) bool
	Poll() (*Cell[K, V], bool)
	Len() int
	Close()
}

// NewLockFreeReclaimQueue creates the default queue, a util.LockFreeQueue of cells
func NewLockFreeReclaimQueue[K comparable, V any]() ReclaimQueue[K, V] {
	return util.NewLockFreeQueue[Cell[K, V]]()
}
