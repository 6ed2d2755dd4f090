package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.ObserveJobRun(JobStartSweep, JobOutcomeSuccess, 120*time.Millisecond)
	m.ObserveJobRun(JobStartSweep, JobOutcomeSkipped, 0)
	m.RecordTransitions("start_time_reached", "not_arrived", 3)
	m.RecordTransitions("start_time_reached", "not_arrived", 0)
	m.RecordPinCheck(PinOutcomeRejected)
	m.RecordPropagation(PropagationOutcomeApplied)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobRuns.WithLabelValues(JobStartSweep, JobOutcomeSkipped)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.transitions.WithLabelValues("start_time_reached", "not_arrived")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pinChecks.WithLabelValues(PinOutcomeRejected)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "attendance_schedule_propagations_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	m.RecordPinCheck(PinOutcomeCheckedIn)
	assert.Nil(t, m.Registry())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
