package hybrid

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/refmap/lib/refmap"
	"github.com/ValentinKolb/refmap/lib/util"
	lru "github.com/hashicorp/golang-lru"
)

// --------------------------------------------------------------------------
// Reclaim triggers
// --------------------------------------------------------------------------

// Trigger names what made the memory manager reclaim a value
type Trigger int

const (
	TriggerCycle Trigger = iota
	TriggerPressure
	TriggerBudget
	TriggerWeakTier
)

func (t Trigger) String() string {
	switch t {
	case TriggerCycle:
		return "cycle"
	case TriggerPressure:
		return "pressure"
	case TriggerBudget:
		return "budget"
	case TriggerWeakTier:
		return "weak_tier"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Reclaimer (the memory manager of a map)
// --------------------------------------------------------------------------

// Reclaimer decides when a cell is reclaimed. It tracks every live cell of a map,
// reclaims cells according to the policy and publishes every reclaimed cell on the
// reclaim queue. The map purges the entries later, when it drains the queue.
//
// Pinned cells (held by the retention buffer) are never reclaimed.
type Reclaimer[K comparable, V any] struct {
	policy    refmap.Policy
	budget    int64
	queue     ReclaimQueue[K, V]
	onReclaim func(trigger Trigger, n int)

	mu     sync.Mutex
	live   map[uint64]*Cell[K, V]
	weight int64

	// weakTier is never called while mu is held: its evict callback takes mu
	weakTier *lru.Cache

	// background reclamation
	stopped  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	gcWatch  *gcWatcher
}

// NewReclaimer creates a reclaimer publishing to queue. onReclaim may be nil.
func NewReclaimer[K comparable, V any](policy refmap.Policy, weakTierSize int, softBudget int64, queue ReclaimQueue[K, V], onReclaim func(Trigger, int)) (*Reclaimer[K, V], error) {
	if onReclaim == nil {
		onReclaim = func(Trigger, int) {}
	}

	r := &Reclaimer[K, V]{
		policy:    policy,
		budget:    softBudget,
		queue:     queue,
		onReclaim: onReclaim,
		live:      make(map[uint64]*Cell[K, V]),
	}

	if policy == refmap.PolicyWeak && weakTierSize > 0 {
		tier, err := lru.NewWithEvict(weakTierSize, r.onWeakEvict)
		if err != nil {
			return nil, fmt.Errorf("creating weak tier: %w", err)
		}
		r.weakTier = tier
	}

	return r, nil
}

// Register starts tracking a new live cell.
// For a soft map this may immediately reclaim older cells to honor the budget.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer[K, V]) Register(c *Cell[K, V]) {
	r.mu.Lock()
	r.live[c.ID()] = c
	r.weight += int64(c.Weight())
	overBudget := r.overBudget()
	r.mu.Unlock()

	if r.weakTier != nil {
		r.weakTier.Add(c.ID(), c)
	}

	if overBudget {
		r.enforceBudget()
	}
}

// Unregister stops tracking a cell that left the map (removed or replaced)
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer[K, V]) Unregister(c *Cell[K, V]) {
	r.mu.Lock()
	if r.live[c.ID()] == c {
		delete(r.live, c.ID())
		r.weight -= int64(c.Weight())
	}
	r.mu.Unlock()

	if r.weakTier != nil {
		r.weakTier.Remove(c.ID())
	}
}

// Touched marks a cell as recently used in the weak tier
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer[K, V]) Touched(c *Cell[K, V]) {
	if r.weakTier == nil || r.stopped.Load() || c.IsReclaimed() {
		return
	}
	if _, ok := r.weakTier.Get(c.ID()); ok || !r.tracks(c) {
		return
	}

	// dropped from the tier while pinned, track it again
	r.weakTier.Add(c.ID(), c)

	// unregistered between the check and the add
	if !r.tracks(c) {
		r.weakTier.Remove(c.ID())
	}
}

// Cycle runs one reclaim cycle. A weak map reclaims every unpinned cell,
// a soft map only enforces its budget. Returns the number of reclaimed cells.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer[K, V]) Cycle() int {
	if r.stopped.Load() {
		return 0
	}
	if r.policy == refmap.PolicyWeak {
		return r.reclaimAll(TriggerCycle)
	}
	return r.enforceBudget()
}

// Pressure reclaims every unpinned cell, whatever the policy
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer[K, V]) Pressure() int {
	if r.stopped.Load() {
		return 0
	}
	return r.reclaimAll(TriggerPressure)
}

// Len returns the number of tracked live cells
func (r *Reclaimer[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Weight returns the summed weight of all tracked live cells
func (r *Reclaimer[K, V]) Weight() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weight
}

// SampleWeights calls fn with the weight of up to limit tracked cells
func (r *Reclaimer[K, V]) SampleWeights(limit int, fn func(weight int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.live {
		if n >= limit {
			return
		}
		fn(c.Weight())
		n++
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// tracks reports whether c is a registered live cell
func (r *Reclaimer[K, V]) tracks(c *Cell[K, V]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[c.ID()] == c
}

// overBudget reports whether a soft budget is exceeded. Caller must hold r.mu.
func (r *Reclaimer[K, V]) overBudget() bool {
	return r.policy == refmap.PolicySoft && r.budget > 0 && r.weight > r.budget
}

// reclaimAll reclaims every unpinned live cell
func (r *Reclaimer[K, V]) reclaimAll(trigger Trigger) int {
	var reclaimed []*Cell[K, V]

	r.mu.Lock()
	for id, c := range r.live {
		if c.reclaim() {
			delete(r.live, id)
			r.weight -= int64(c.Weight())
			reclaimed = append(reclaimed, c)
		}
	}
	r.mu.Unlock()

	return r.publish(trigger, reclaimed)
}

// enforceBudget reclaims unpinned cells, least recently touched first,
// until the tracked weight is within the soft budget again
func (r *Reclaimer[K, V]) enforceBudget() int {
	var reclaimed []*Cell[K, V]

	r.mu.Lock()
	if r.overBudget() {
		candidates := util.NewMapHeap()
		for id, c := range r.live {
			if !c.Pinned() {
				candidates.AddItem(id, c.LastTouch())
			}
		}

		for r.weight > r.budget {
			id, _, ok := candidates.PopMin()
			if !ok {
				break // everything left is pinned
			}
			c := r.live[id]
			if c.reclaim() {
				delete(r.live, id)
				r.weight -= int64(c.Weight())
				reclaimed = append(reclaimed, c)
			}
		}
	}
	r.mu.Unlock()

	return r.publish(TriggerBudget, reclaimed)
}

// publish announces reclaimed cells on the queue. Must be called without holding r.mu.
func (r *Reclaimer[K, V]) publish(trigger Trigger, reclaimed []*Cell[K, V]) int {
	if len(reclaimed) == 0 {
		return 0
	}

	for _, c := range reclaimed {
		r.queue.Push(c)
		if r.weakTier != nil {
			r.weakTier.Remove(c.ID())
		}
	}

	r.onReclaim(trigger, len(reclaimed))
	Logger.Debugf("reclaimed %d values (trigger: %s)", len(reclaimed), trigger)

	return len(reclaimed)
}

// onWeakEvict is the evict callback of the weak tier. It runs while the tier is locked,
// so it must not call back into the tier.
func (r *Reclaimer[K, V]) onWeakEvict(_ interface{}, value interface{}) {
	c, ok := value.(*Cell[K, V])
	if !ok {
		return
	}

	r.mu.Lock()
	if r.stopped.Load() || r.live[c.ID()] != c || !c.reclaim() {
		// already gone, or pinned by the retention buffer
		r.mu.Unlock()
		return
	}
	delete(r.live, c.ID())
	r.weight -= int64(c.Weight())
	r.mu.Unlock()

	r.queue.Push(c)
	r.onReclaim(TriggerWeakTier, 1)
}

// --------------------------------------------------------------------------
// Background reclamation
// --------------------------------------------------------------------------

// start runs reclaim cycles in the background: every interval (if > 0) and after every
// Go garbage collection (if gcDriven). A GC-driven cycle of a soft map also signals
// pressure when the live heap exceeds heapSoftLimit.
//
// Thread-safety: This function is not thread-safe and must be called at most once.
func (r *Reclaimer[K, V]) start(interval time.Duration, gcDriven bool, heapSoftLimit uint64) {
	if interval <= 0 && !gcDriven {
		return
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	var tick <-chan time.Time
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		tick = ticker.C
	}

	var collected <-chan struct{}
	if gcDriven {
		r.gcWatch = newGCWatcher()
		collected = r.gcWatch.C()
	}

	go func() {
		defer close(r.done)
		if ticker != nil {
			defer ticker.Stop()
		}

		for {
			select {
			case <-r.stop:
				return
			case <-tick:
				r.Cycle()
			case <-collected:
				r.Cycle()
				if r.policy == refmap.PolicySoft && heapSoftLimit > 0 && liveHeapBytes() > heapSoftLimit {
					Logger.Infof("live heap above soft limit of %d bytes, signaling pressure", heapSoftLimit)
					r.Pressure()
				}
			}
		}
	}()
}

// shutdown stops background reclamation and waits for the running cycle to finish.
// Afterwards no trigger reclaims anything.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Reclaimer[K, V]) shutdown() {
	r.stopped.Store(true)
	r.stopOnce.Do(func() {
		if r.gcWatch != nil {
			r.gcWatch.Stop()
		}
		if r.stop != nil {
			close(r.stop)
			<-r.done
		}
	})
}
