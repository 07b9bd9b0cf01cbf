package util

import (
	"math"
	"sync"
)

// sizeBoundaries are the upper bounds of the histogram buckets, from 16 B to 4 GiB.
// Everything larger lands in an extra overflow bucket.
var sizeBoundaries = []uint64{
	16, 64, 256, 1 << 10, 4 << 10,
	16 << 10, 64 << 10, 256 << 10, 1 << 20,
	4 << 20, 16 << 20, 64 << 20,
	256 << 20, 1 << 30, 4 << 30,
}

// SizeHistogram records the distribution of allocation sizes with exponential buckets.
// It answers average, median and percentile queries without keeping every sample.
//
// Thread-safe: all methods are safe for concurrent use
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets []uint64
	count   uint64
	sum     uint64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{
		buckets: make([]uint64, len(sizeBoundaries)+1),
	}
}

// AddSample records one size
func (h *SizeHistogram) AddSample(size uint64) {
	idx := len(sizeBoundaries)
	for i, b := range sizeBoundaries {
		if size <= b {
			idx = i
			break
		}
	}

	h.mu.Lock()
	h.buckets[idx]++
	h.count++
	h.sum += size
	h.mu.Unlock()
}

// Count returns the number of samples
func (h *SizeHistogram) Count() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Average returns the exact mean of all samples
func (h *SizeHistogram) Average() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / h.count
}

// Percentile estimates the given percentile (0-100) from the bucket boundaries
func (h *SizeHistogram) Percentile(p int) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := uint64(math.Ceil(float64(h.count) * float64(p) / 100.0))
	var cumulative uint64
	for i, c := range h.buckets {
		cumulative += c
		if cumulative >= target && c > 0 {
			return bucketEstimate(i)
		}
	}
	return h.sum / h.count
}

// Median estimates the 50th percentile
func (h *SizeHistogram) Median() uint64 {
	return h.Percentile(50)
}

// Reset drops all samples
func (h *SizeHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count = 0
	h.sum = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// bucketEstimate returns a representative size for bucket i
func bucketEstimate(i int) uint64 {
	switch {
	case i == 0:
		return sizeBoundaries[0] / 2
	case i < len(sizeBoundaries):
		return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
	default:
		// overflow bucket
		return sizeBoundaries[len(sizeBoundaries)-1] * 2
	}
}
