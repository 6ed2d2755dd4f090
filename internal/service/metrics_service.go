package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job run outcomes reported to Prometheus.
const (
	JobOutcomeSuccess = "success"
	JobOutcomeFailure = "failure"
	JobOutcomeSkipped = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	pinChecks       *prometheus.CounterVec
	propagations    *prometheus.CounterVec
}

// NewMetricsService registers the service collectors on a private registry.
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

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_job_runs_total",
		Help: "Scheduled job runs by job and outcome",
	}, []string{"job", "outcome"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_job_duration_seconds",
		Help:    "Duration of scheduled job runs",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_transitions_total",
		Help: "Attendance record transitions by event and target status",
	}, []string{"event", "to"})

	pinChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_pin_checks_total",
		Help: "PIN check attempts by outcome",
	}, []string{"outcome"})

	propagations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_schedule_propagations_total",
		Help: "Schedule change propagations by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, jobRuns, jobDuration, transitions, pinChecks, propagations, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		transitions:     transitions,
		pinChecks:       pinChecks,
		propagations:    propagations,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveJobRun records one scheduled job execution.
func (m *MetricsService) ObserveJobRun(job, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome != JobOutcomeSkipped {
		m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// RecordTransitions counts n transitions of one kind.
func (m *MetricsService) RecordTransitions(event, to string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(event, to).Add(float64(n))
}

// RecordPinCheck counts a PIN check outcome.
func (m *MetricsService) RecordPinCheck(outcome string) {
	if m == nil {
		return
	}
	m.pinChecks.WithLabelValues(outcome).Inc()
}

// RecordPropagation counts a propagation outcome.
func (m *MetricsService) RecordPropagation(outcome string) {
	if m == nil {
		return
	}
	m.propagations.WithLabelValues(outcome).Inc()
}
