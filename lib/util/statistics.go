// Package util
//
// This file implements a size histogram used to report the weight distribution of
// cached values without keeping every sample. Buckets grow exponentially so a
// handful of counters covers values from a few bytes up to gigabytes.
package util

import (
	"math"
	"sync"
)

// SizeHistogram tracks the distribution of value weights (in bytes)
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64 // len(boundaries)+1, the last bucket takes everything larger
	count      int64
	sum        int64
}

// NewSizeHistogram creates a histogram with bucket boundaries from 16B to 4GB
func NewSizeHistogram() *SizeHistogram {
	boundaries := []int{
		16, 64, 256, 1024, 4096, // 16B to 4KB
		16384, 65536, 262144, 1048576, // 16KB to 1MB
		4194304, 16777216, 67108864, // 4MB to 64MB
		268435456, 1073741824, 4294967296, // 256MB to 4GB
	}
	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// AddSample records one value weight
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucket := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucket = i
			break
		}
	}

	h.buckets[bucket]++
	h.count++
	h.sum += int64(size)
}

// Count returns the number of samples
func (h *SizeHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the mean of all samples
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median from the bucket counts
func (h *SizeHistogram) MedianEstimate() int {
	return h.PercentileEstimate(50)
}

// PercentileEstimate returns an estimate for the given percentile (0-100).
// Inside a bucket the midpoint between its boundaries is used.
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) PercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	cumulative := int64(0)

	for i, count := range h.buckets {
		cumulative += count
		if cumulative < target || count == 0 {
			continue
		}
		switch {
		case i == 0:
			return h.boundaries[0] / 2
		case i < len(h.boundaries):
			return (h.boundaries[i-1] + h.boundaries[i]) / 2
		default:
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	return int(h.sum / h.count)
}
