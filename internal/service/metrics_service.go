package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the promotion workflow.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	placementOutcomes *prometheus.CounterVec
	commitDuration    prometheus.Histogram
	undoTotal         *prometheus.CounterVec
	yearLocks         prometheus.Counter
	previewsWritten   prometheus.Counter
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	placementOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_placements_total",
		Help: "Placement decisions by operation and outcome",
	}, []string{"operation", "outcome"})

	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promotion_commit_duration_seconds",
		Help:    "Wall time of a full commit of a staging workspace",
		Buckets: prometheus.DefBuckets,
	})

	undoTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_undo_total",
		Help: "Undo requests by result",
	}, []string{"result"})

	yearLocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promotion_year_locks_total",
		Help: "School years locked through the API",
	})

	previewsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promotion_previews_total",
		Help: "Preview files written",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, placementOutcomes, commitDuration, undoTotal, yearLocks, previewsWritten, cacheLatency, cacheWrite, cacheHitRatio, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		placementOutcomes: placementOutcomes,
		commitDuration:    commitDuration,
		undoTotal:         undoTotal,
		yearLocks:         yearLocks,
		previewsWritten:   previewsWritten,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordPlacement counts one per-student decision of operation ("assign" or "commit").
func (m *MetricsService) RecordPlacement(operation string, outcome models.PlacementStatus) {
	if m == nil {
		return
	}
	m.placementOutcomes.WithLabelValues(operation, string(outcome)).Inc()
}

// ObserveCommit records how long a commit of a whole workspace took.
func (m *MetricsService) ObserveCommit(duration time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(duration.Seconds())
}

// RecordUndo counts undo requests; applied is false when the ledger was empty.
func (m *MetricsService) RecordUndo(applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "empty"
	}
	m.undoTotal.WithLabelValues(result).Inc()
}

// RecordYearLock counts a successful lock.
func (m *MetricsService) RecordYearLock() {
	if m == nil {
		return
	}
	m.yearLocks.Inc()
}

// RecordPreview counts a written preview file.
func (m *MetricsService) RecordPreview() {
	if m == nil {
		return
	}
	m.previewsWritten.Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
