package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

func TestMetricsServiceCountsPromotionEvents(t *testing.T) {
	m := NewMetricsService()

	m.RecordPlacement("assign", models.PlacementAdmissible)
	m.RecordPlacement("assign", models.PlacementAdmissible)
	m.RecordPlacement("assign", models.PlacementClassFull)
	m.RecordUndo(true)
	m.RecordUndo(false)
	m.RecordYearLock()
	m.RecordPreview()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.placementOutcomes.WithLabelValues("assign", string(models.PlacementAdmissible))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.placementOutcomes.WithLabelValues("assign", string(models.PlacementClassFull))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.undoTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.yearLocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.previewsWritten))
}

func TestMetricsServiceCacheHitRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	assert.InDelta(t, 0.75, testutil.ToFloat64(m.cacheHitRatio), 0.0001)
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/promotions/assign", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/api/v1/promotions/assign",status="200"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordPlacement("commit", models.PlacementAdmissible)
		m.ObserveCommit(time.Second)
		m.RecordUndo(true)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
