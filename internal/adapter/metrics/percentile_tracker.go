package metrics

import (
	"math/rand/v2"
	"sort"
	"sync"
)

// percentileTracker maintains a fixed-size reservoir sample of latency
// values, giving good statistical accuracy with bounded memory instead
// of retaining every observation.
type percentileTracker struct {
	samples    []int64
	sampleSize int
	count      int64
	mu         sync.Mutex
}

func newPercentileTracker(sampleSize int) *percentileTracker {
	if sampleSize <= 0 {
		sampleSize = 200
	}
	return &percentileTracker{
		sampleSize: sampleSize,
		samples:    make([]int64, 0, sampleSize),
	}
}

func (t *percentileTracker) Add(value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++

	if len(t.samples) < t.sampleSize {
		t.samples = append(t.samples, value)
		return
	}

	j := rand.Int64N(t.count)
	if j < int64(t.sampleSize) {
		t.samples[j] = value
	}
}

func (t *percentileTracker) Percentiles() (p50, p95, p99 int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0, 0, 0
	}

	sorted := make([]int64, len(t.samples))
	copy(sorted, t.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(pct int) int64 {
		i := len(sorted) * pct / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}
	return idx(50), idx(95), idx(99)
}
