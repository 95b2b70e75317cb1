package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent durations in a fixed ring and reports
// percentiles over them.
type LatencyTracker struct {
	mu       sync.RWMutex
	ring     []time.Duration
	next     int
	full     bool
	observed int
}

// NewLatencyTracker retains up to size samples (512 when size <= 0).
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, size)}
}

// Observe records d, overwriting the oldest sample once the ring is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.observed++
}

// Len returns how many samples are retained.
func (l *LatencyTracker) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.len()
}

// Observed returns the number of samples ever recorded.
func (l *LatencyTracker) Observed() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.observed
}

// Percentile returns the p-th (0-100) percentile using nearest rank over the
// retained samples, or zero when empty.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	n := l.len()
	sorted := make([]time.Duration, n)
	copy(sorted, l.ring[:n])
	l.mu.RUnlock()

	if n == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	return sorted[int(p/100*float64(n-1))]
}

func (l *LatencyTracker) len() int {
	if l.full {
		return len(l.ring)
	}
	return l.next
}
