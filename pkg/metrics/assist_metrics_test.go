package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	s := lt.Stats()
	assert.Equal(t, int64(100), s.Count)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 50*time.Millisecond, s.P50)
	assert.Equal(t, 95*time.Millisecond, s.P95)
}

func TestLatencyTracker_WindowTrims(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 0; i < 25; i++ {
		lt.Record(time.Millisecond)
	}
	assert.LessOrEqual(t, lt.Stats().Count, int64(10))
}

func TestLatencyRegistry(t *testing.T) {
	r := NewLatencyRegistry(10)
	r.Record("POST /api/v1/retrieval/query", 3*time.Millisecond)
	r.Record("POST /api/v1/retrieval/query", 5*time.Millisecond)

	assert.Equal(t, int64(2), r.Stats("POST /api/v1/retrieval/query").Count)
	assert.Zero(t, r.Stats("GET /nothing").Count)
	assert.Len(t, r.AllStats(), 1)
	assert.Equal(t, 4.0, r.Stats("POST /api/v1/retrieval/query").ToMap()["avg_ms"])
}

func TestAssessDBPoolHealth(t *testing.T) {
	tests := []struct {
		name  string
		stats DBPoolStats
		want  PoolHealthStatus
	}{
		{"unlimited", DBPoolStats{}, PoolHealthy},
		{"normal", DBPoolStats{InUse: 2, MaxOpenConnections: 10}, PoolHealthy},
		{"busy", DBPoolStats{InUse: 8, MaxOpenConnections: 10}, PoolDegraded},
		{"exhausted", DBPoolStats{InUse: 10, MaxOpenConnections: 10}, PoolUnhealthy},
		{"waiting", DBPoolStats{InUse: 1, MaxOpenConnections: 10, WaitCount: 3, WaitDuration: 6 * time.Second}, PoolDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssessDBPoolHealth(tt.stats).Status)
		})
	}
}
