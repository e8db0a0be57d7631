package refmap

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplHybrid Implementation = "hybrid"
)

// Policy is the reclamation policy applied to every value of a map.
// It is fixed when the map is created.
type Policy int

const (
	// PolicyWeak values are reclaimed at every reclaim cycle once they are no longer
	// held by the retention buffer.
	PolicyWeak Policy = iota
	// PolicySoft values are only reclaimed under memory pressure.
	PolicySoft
)

func (p Policy) String() string {
	switch p {
	case PolicyWeak:
		return "weak"
	case PolicySoft:
		return "soft"
	default:
		return "unknown"
	}
}

// MarshalText encodes the policy by name (used for JSON output of Info)
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePolicy converts "weak" or "soft" (case-insensitive) into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weak":
		return PolicyWeak, nil
	case "soft":
		return PolicySoft, nil
	default:
		return PolicyWeak, fmt.Errorf("%w: %q (expected weak or soft)", ErrInvalidPolicy, s)
	}
}

// Entry is a resolved key-value pair returned by RefMap.Entries
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Info describes the current state of a map.
// All values are read without draining pending reclaim notifications.
type Info struct {
	DbType               Implementation `json:"db_type"`
	Policy               Policy         `json:"policy"`
	Entries              int            `json:"entries"`
	Retained             int            `json:"retained"`
	RetentionSize        int            `json:"retention_size"`
	Tracked              int            `json:"tracked"`
	TrackedWeight        int64          `json:"tracked_weight"`
	PendingNotifications int            `json:"pending_notifications"`
	Reclaimed            uint64         `json:"reclaimed"`
	Purged               uint64         `json:"purged"`
	AvgDrainBatch        float64        `json:"avg_drain_batch"`
	Metadata             interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNilKey is returned when a nil key (only possible for interface key types) is written
	ErrNilKey = errors.New("refmap: nil key")
	// ErrClosed is returned when writing to a closed map
	ErrClosed = errors.New("refmap: map is closed")
	// ErrInvalidPolicy is returned by ParsePolicy
	ErrInvalidPolicy = errors.New("refmap: invalid policy")
)

// --------------------------------------------------------------------------
// Map Interface
// --------------------------------------------------------------------------

// RefMap is an associative container whose values are held under a reclamation policy.
//
// Values may disappear without an explicit Remove once the memory manager reclaims them.
// A reclaimed value is never returned. Every operation first purges entries whose
// reclamation was already announced, so results are eventually consistent: Size may
// count entries that were reclaimed but not yet purged, and Keys and Values are not
// atomic with respect to each other.
//
// All methods are safe for concurrent use. Each method is atomic on its own,
// sequences of calls are not.
type RefMap[K comparable, V any] interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put stores value under key and marks it as recently used.
	// It returns the previous value if one was stored and is still resolvable.
	// A nil key is rejected with ErrNilKey.
	Put(key K, value V) (previous V, loaded bool, err error)

	// PutAll stores every pair of source. It is not atomic: a failure leaves the pairs
	// stored so far in place. An empty source only purges pending reclamations.
	PutAll(source map[K]V) error

	// Remove deletes key and returns its value if it was still resolvable.
	// A nil key is never stored, so removing it reports absence instead of an error.
	Remove(key K) (previous V, loaded bool)

	// Clear removes all entries and empties the retention buffer.
	Clear()

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the value for key and marks it as recently used.
	// A key whose value was reclaimed is purged and reported as absent.
	//
	// A nil key is never stored: Get reports it as absent instead of failing.
	Get(key K) (value V, loaded bool)

	// ContainsKey reports whether key is present. It does not mark the value as used
	// and does not resolve it, so a reclaimed value may still be reported until its
	// reclamation is announced. A nil key is reported as absent.
	ContainsKey(key K) bool

	// ContainsValueFunc reports whether any resolvable value satisfies match.
	ContainsValueFunc(match func(V) bool) bool

	// Size returns the number of entries. It is an upper bound: entries whose values were
	// reclaimed but not yet purged are counted.
	Size() int

	// IsEmpty reports whether Size() == 0
	IsEmpty() bool

	// Keys returns a snapshot of all keys
	Keys() []K

	// Values returns the resolvable values. Entries reclaimed between the snapshot of the
	// keys and the resolution of their value are omitted.
	Values() []V

	// Entries returns the resolvable key-value pairs, with the same consistency as Values.
	Entries() []Entry[K, V]

	// --------------------------------------------------------------------------
	// Reclaim Operations
	// --------------------------------------------------------------------------

	// Reclaim runs one reclaim cycle of the memory manager and returns the number of
	// values reclaimed. Purging happens on the next map operation.
	Reclaim() int

	// SignalPressure signals memory pressure: every value not held by the retention
	// buffer is reclaimed, whatever the policy. It returns the number of values reclaimed.
	SignalPressure() int

	// --------------------------------------------------------------------------
	// Metadata
	// --------------------------------------------------------------------------

	// Info returns statistics about the map
	Info() Info

	// WritePrometheus writes the metrics of this map in Prometheus text format
	WritePrometheus(w io.Writer)

	// Close stops the memory manager. Further writes fail with ErrClosed and Reclaim and
	// SignalPressure reclaim nothing. Reads, Remove and Clear keep working.
	Close() error
}
