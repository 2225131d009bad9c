package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects counters for API exchanges and cache activity.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	cacheShared        atomic.Int64
	cacheInvalidations atomic.Int64

	entityMetrics map[string]*EntityMetrics
}

// EntityMetrics represents metrics for a single entity collection.
type EntityMetrics struct {
	requestCount  atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{entityMetrics: make(map[string]*EntityMetrics)}
}

// RecordRequest records a finished API exchange.
func (m *Metrics) RecordRequest(entity string, duration time.Duration, failed bool) {
	m.requestTotal.Add(1)
	em := m.getEntityMetrics(entity)
	em.requestCount.Add(1)
	em.totalDuration.Add(duration.Milliseconds())
	if failed {
		m.requestFailed.Add(1)
		em.errorCount.Add(1)
	}
}

func (m *Metrics) RecordCacheHit()    { m.cacheHits.Add(1) }
func (m *Metrics) RecordCacheMiss()   { m.cacheMisses.Add(1) }
func (m *Metrics) RecordCacheShared() { m.cacheShared.Add(1) }

// RecordInvalidations records n cache keys marked stale by one mutation.
func (m *Metrics) RecordInvalidations(n int) {
	m.cacheInvalidations.Add(int64(n))
}

func (m *Metrics) getEntityMetrics(entity string) *EntityMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	em, ok := m.entityMetrics[entity]
	if !ok {
		em = &EntityMetrics{}
		m.entityMetrics[entity] = em
	}
	return em
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.requestTotal.Store(0)
	m.requestFailed.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.cacheShared.Store(0)
	m.cacheInvalidations.Store(0)

	m.mu.Lock()
	m.entityMetrics = make(map[string]*EntityMetrics)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	entities := make(map[string]*EntityMetricsSnapshot, len(m.entityMetrics))
	for entity, em := range m.entityMetrics {
		snap := &EntityMetricsSnapshot{
			RequestCount:  em.requestCount.Load(),
			TotalDuration: em.totalDuration.Load(),
			ErrorCount:    em.errorCount.Load(),
		}
		if snap.RequestCount > 0 {
			snap.AverageDuration = snap.TotalDuration / snap.RequestCount
		}
		entities[entity] = snap
	}

	return &MetricsSnapshot{
		RequestTotal:       m.requestTotal.Load(),
		RequestFailed:      m.requestFailed.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
		CacheShared:        m.cacheShared.Load(),
		CacheInvalidations: m.cacheInvalidations.Load(),
		Entities:           entities,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal       int64
	RequestFailed      int64
	CacheHits          int64
	CacheMisses        int64
	CacheShared        int64
	CacheInvalidations int64
	Entities           map[string]*EntityMetricsSnapshot
}

// EntityMetricsSnapshot represents metrics for one entity collection.
type EntityMetricsSnapshot struct {
	RequestCount    int64
	TotalDuration   int64
	ErrorCount      int64
	AverageDuration int64
}
