package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount      int64
	ErrorCount        int64
	Predictions       int64
	BadPredictions    int64
	Sweeps            int64
	SweepPoints       int64
	SweepWarnings     int64
	ScoringFailures   int64
	SessionsCreated   int64
	RateLimitBlocks   int64
	TotalResponseTime int64 // nanoseconds
	ResponseCount     int64
	StartTime         time.Time

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	SweepsByFeature map[string]int64
	SweepMutex      sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, maxResponseSamples),
		RequestCountByStatus: make(map[int]int64),
		SweepsByFeature:      make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// RecordPrediction counts a prediction and whether it was classified bad
func (m *Metrics) RecordPrediction(isBad bool) {
	atomic.AddInt64(&m.Predictions, 1)
	if isBad {
		atomic.AddInt64(&m.BadPredictions, 1)
	}
}

// RecordSweep counts a completed sweep and its points
func (m *Metrics) RecordSweep(feature string, points int) {
	atomic.AddInt64(&m.Sweeps, 1)
	atomic.AddInt64(&m.SweepPoints, int64(points))

	m.SweepMutex.Lock()
	m.SweepsByFeature[feature]++
	m.SweepMutex.Unlock()
}

// IncrementSweepWarning counts sweeps skipped because of an invalid range
func (m *Metrics) IncrementSweepWarning() {
	atomic.AddInt64(&m.SweepWarnings, 1)
}

// IncrementScoringFailure counts model failures
func (m *Metrics) IncrementScoringFailure() {
	atomic.AddInt64(&m.ScoringFailures, 1)
}

// IncrementSessionCreated counts new sessions
func (m *Metrics) IncrementSessionCreated() {
	atomic.AddInt64(&m.SessionsCreated, 1)
}

// IncrementRateLimitBlock counts requests rejected by the rate limiter
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

// RecordResponseTime records response time for the mean and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	atomic.AddInt64(&m.TotalResponseTime, duration.Nanoseconds())
	atomic.AddInt64(&m.ResponseCount, 1)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > maxResponseSamples {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// GetAverageResponseTime returns the mean of every recorded response time
func (m *Metrics) GetAverageResponseTime() time.Duration {
	count := atomic.LoadInt64(&m.ResponseCount)
	if count == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.TotalResponseTime) / count)
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetSweepsByFeature returns how often each feature was swept
func (m *Metrics) GetSweepsByFeature() map[string]int64 {
	m.SweepMutex.RLock()
	defer m.SweepMutex.RUnlock()

	out := make(map[string]int64, len(m.SweepsByFeature))
	for feature, count := range m.SweepsByFeature {
		out[feature] = count
	}
	return out
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	predictions := atomic.LoadInt64(&m.Predictions)
	bad := atomic.LoadInt64(&m.BadPredictions)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	badRate := float64(0)
	if predictions > 0 {
		badRate = float64(bad) / float64(predictions) * 100
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
		"start_time":         m.StartTime.Format(time.RFC3339),
		"total_requests":     requests,
		"error_count":        errors,
		"error_rate_percent": errorRate,

		"predictions":          predictions,
		"bad_predictions":      bad,
		"bad_rate_percent":     badRate,
		"sweeps":               atomic.LoadInt64(&m.Sweeps),
		"sweep_points":         atomic.LoadInt64(&m.SweepPoints),
		"sweep_warnings":       atomic.LoadInt64(&m.SweepWarnings),
		"sweeps_by_feature":    m.GetSweepsByFeature(),
		"scoring_failures":     atomic.LoadInt64(&m.ScoringFailures),
		"sessions_created":     atomic.LoadInt64(&m.SessionsCreated),
		"rate_limit_blocks":    atomic.LoadInt64(&m.RateLimitBlocks),
		"avg_response_time_ms": float64(m.GetAverageResponseTime()) / 1000000,

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"go_goroutines":       runtime.NumGoroutine(),
		"go_gc_count":         mem.NumGC,
		"go_heap_alloc_bytes": mem.HeapAlloc,
		"go_heap_sys_bytes":   mem.HeapSys,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	for _, counter := range []*int64{
		&m.RequestCount, &m.ErrorCount, &m.Predictions, &m.BadPredictions,
		&m.Sweeps, &m.SweepPoints, &m.SweepWarnings, &m.ScoringFailures,
		&m.SessionsCreated, &m.RateLimitBlocks, &m.TotalResponseTime, &m.ResponseCount,
	} {
		atomic.StoreInt64(counter, 0)
	}

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.SweepMutex.Lock()
	m.SweepsByFeature = make(map[string]int64)
	m.SweepMutex.Unlock()

	m.StartTime = time.Now()
}
