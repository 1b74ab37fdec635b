// Package metrics tracks request latency and connection pool health for
// the health endpoints.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of samples for percentiles.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// drop the oldest 10% at once to avoid shifting on every sample
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = append(lt.samples[:0], lt.samples[drop:]...)
	}
	lt.samples = append(lt.samples, d.Microseconds())
}

// Stats returns latency statistics. Percentiles use nearest rank.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	// sort a copy; the window itself stays in arrival order for trimming
	samples := append([]int64(nil), lt.samples...)
	lt.mu.Unlock()

	n := len(samples)
	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum int64
	for _, v := range samples {
		sum += v
	}
	at := func(p float64) time.Duration {
		return time.Duration(samples[int(float64(n-1)*p)]) * time.Microsecond
	}
	return LatencyStats{
		Count: int64(n),
		Min:   time.Duration(samples[0]) * time.Microsecond,
		Max:   time.Duration(samples[n-1]) * time.Microsecond,
		Avg:   time.Duration(sum/int64(n)) * time.Microsecond,
		P50:   at(0.50),
		P95:   at(0.95),
		P99:   at(0.99),
	}
}

type LatencyStats struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// ToMap renders durations as fractional milliseconds.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":  s.Count,
		"min_ms": ms(s.Min),
		"max_ms": ms(s.Max),
		"avg_ms": ms(s.Avg),
		"p50_ms": ms(s.P50),
		"p95_ms": ms(s.P95),
		"p99_ms": ms(s.P99),
	}
}

// LatencyRegistry holds one tracker per route.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

func (r *LatencyRegistry) Record(route string, d time.Duration) {
	r.mu.RLock()
	tracker, ok := r.trackers[route]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[route]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[route] = tracker
		}
		r.mu.Unlock()
	}
	tracker.Record(d)
}

func (r *LatencyRegistry) Stats(route string) LatencyStats {
	r.mu.RLock()
	tracker, ok := r.trackers[route]
	r.mu.RUnlock()
	if !ok {
		return LatencyStats{}
	}
	return tracker.Stats()
}

func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for route, tracker := range r.trackers {
		result[route] = tracker.Stats()
	}
	return result
}
