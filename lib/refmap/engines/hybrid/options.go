package hybrid

import (
	"reflect"
	"time"

	"github.com/ValentinKolb/refmap/lib/refmap"
)

// Constants for map behavior
const (
	defaultRetentionSize = 100
	minInitialCapacity   = 32
	defaultName          = "default"
)

// Options configures a hybrid map during initialization
type Options struct {
	Policy        refmap.Policy // Reclamation policy for all values (default: weak)
	RetentionSize int           // Capacity of the retention buffer (default: 100, negative = 0)

	// WeakTierSize bounds the number of weak values tracked for recency.
	// A value evicted from the weak tier is reclaimed unless the retention buffer holds it.
	// 0 = unbounded, only reclaim cycles reclaim weak values.
	WeakTierSize int

	// SoftBudgetBytes is the memory budget of soft values (sum of weights).
	// When it is exceeded the least recently touched values are reclaimed first.
	// 0 = no budget, soft values only go on SignalPressure.
	SoftBudgetBytes int64

	// HeapSoftLimitBytes makes a GC-driven cycle of a soft map signal pressure when the
	// live Go heap exceeds it (0 = never). Only used with GCDriven.
	HeapSoftLimitBytes uint64

	// Weigher estimates the weight of a value in bytes (nil = DefaultWeigher)
	Weigher func(value any) int

	ReclaimInterval time.Duration // Time between background reclaim cycles (0 = disabled)
	GCDriven        bool          // Run a reclaim cycle after every Go garbage collection

	Name            string // Value of the "cache" label of all metrics
	InitialCapacity int    // Presize of the backing store (at least max(32, RetentionSize))
}

// DefaultOptions returns the default options: weak values, a retention buffer of 100
// and no background reclamation
func DefaultOptions() *Options {
	return &Options{
		Policy:        refmap.PolicyWeak,
		RetentionSize: defaultRetentionSize,
		Name:          defaultName,
	}
}

// normalize fills defaults and clamps invalid values. It never modifies the caller's struct.
func (o Options) normalize() Options {
	o.RetentionSize = max(o.RetentionSize, 0)
	o.WeakTierSize = max(o.WeakTierSize, 0)
	o.SoftBudgetBytes = max(o.SoftBudgetBytes, 0)
	o.InitialCapacity = max(o.InitialCapacity, minInitialCapacity, o.RetentionSize)
	if o.Weigher == nil {
		o.Weigher = DefaultWeigher
	}
	if o.Name == "" {
		o.Name = defaultName
	}
	return o
}

// DefaultWeigher returns the length of strings and byte slices and the in-memory size of
// the type for anything else. It does not follow pointers.
func DefaultWeigher(value any) int {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return len(v)
	case []byte:
		return len(v)
	default:
		return int(reflect.TypeOf(value).Size())
	}
}
