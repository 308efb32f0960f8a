package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	// FNV-1a test vectors
	assert.Equal(t, uint64(0xcbf29ce484222325), HashString("", 0))
	assert.Equal(t, uint64(0xaf63dc4c8601ec8c), HashString("a", 0))
	assert.Equal(t, HashString("hello", 7), HashBytes([]byte("hello"), 7))
	assert.NotEqual(t, HashString("hello", 0), HashString("hello", 1))
	assert.NotEqual(t, Mix(1, 2), Mix(2, 1))
}

func TestStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 2.0, s.StdDeviation)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 2.0/9.0, s.MinMaxRatio, 1e-9)

	assert.Equal(t, Stats{}, NewStats(nil))

	even := NewDistributionStats([]float64{10, 10, 10})
	assert.Equal(t, 1.0, even.Quality)
	skewed := NewDistributionStats([]float64{0, 0, 30})
	assert.Less(t, skewed.Quality, 0.5)
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	assert.Zero(t, h.MedianEstimate())
	assert.Zero(t, h.AverageSize())

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				h.AddSample(100)
			}
		}()
	}
	wg.Wait()
	h.AddSample(5000)

	assert.Equal(t, int64(101), h.Count())
	assert.Equal(t, (100*100+5000)/101, h.AverageSize())
	// 100 lies in the (64, 256] bucket
	assert.Equal(t, (64+256)/2, h.MedianEstimate())
	assert.Equal(t, (4096+16384)/2, h.Percentile(100))
	assert.Zero(t, h.Percentile(101))
}
