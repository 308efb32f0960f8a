package util

import (
	"math"
	"sort"
	"sync"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, standard deviation and extremes of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(sq / float64(len(values)))

	s.MinMaxRatio = 1
	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}
	return s
}

// DistributionStats describes how evenly records are spread over stores.
type DistributionStats struct {
	Stats
	// Quality is 1 for a perfectly even spread and approaches 0 for a skewed one.
	Quality float64 `json:"quality"`
}

func NewDistributionStats(sizes []float64) DistributionStats {
	stats := NewStats(sizes)
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}
	return DistributionStats{
		Stats:   stats,
		Quality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// histogramBounds are the upper bounds of the buckets, 16 B up to 4 GiB.
var histogramBounds = []int{
	16, 64, 256, 1024, 4096,
	16384, 65536, 262144, 1048576,
	4194304, 16777216, 67108864,
	268435456, 1073741824, 4294967296,
}

// SizeHistogram buckets size samples exponentially.
//
// Thread-safe: all methods are safe for concurrent use
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets [16]int64 // one per bound plus overflow
	count   int64
	sum     int64
}

func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{}
}

// AddSample records one size.
func (h *SizeHistogram) AddSample(size int) {
	i := sort.SearchInts(histogramBounds, size)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[i]++
	h.count++
	h.sum += int64(size)
}

func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *SizeHistogram) AverageSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Percentile estimates the given percentile (0-100) from the bucket midpoints.
func (h *SizeHistogram) Percentile(p int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(p) / 100.0))
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative < target || n == 0 {
			continue
		}
		switch {
		case i == 0:
			return histogramBounds[0] / 2
		case i < len(histogramBounds):
			return (histogramBounds[i-1] + histogramBounds[i]) / 2
		default:
			return histogramBounds[len(histogramBounds)-1] * 2
		}
	}
	return int(h.sum / h.count)
}

// MedianEstimate is Percentile(50).
func (h *SizeHistogram) MedianEstimate() int {
	return h.Percentile(50)
}
