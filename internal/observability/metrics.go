package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	gradingCommitsTotal   *prometheus.CounterVec
	assessmentWritesTotal *prometheus.CounterVec
	recordDurationSeconds prometheus.Histogram
	gradingSessionsActive prometheus.Gauge
	masteryCacheLookups   *prometheus.CounterVec
	backendRequestsTotal  *prometheus.CounterVec
	toastsPublishedTotal  *prometheus.CounterVec
	toastStreamsActive    prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbc_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_grading_commits_total",
			Help: "Grading commits by result.",
		}, []string{"result"})

		assessmentWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_assessment_writes_total",
			Help: "Competency assessment row writes by result.",
		}, []string{"result"})

		recordDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cbc_grading_record_duration_seconds",
			Help:    "Time taken to record one grading decision.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})

		gradingSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cbc_grading_sessions_active",
			Help: "Number of open grading sessions held in memory.",
		})

		masteryCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_mastery_cache_lookups_total",
			Help: "Mastery report cache lookups by outcome.",
		}, []string{"outcome"})

		backendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_backend_requests_total",
			Help: "Requests issued to the school records API.",
		}, []string{"operation", "status"})

		toastsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_toasts_published_total",
			Help: "Toast messages published by kind.",
		}, []string{"kind"})

		toastStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cbc_toast_streams_active",
			Help: "Number of open toast SSE streams.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			gradingCommitsTotal,
			assessmentWritesTotal,
			recordDurationSeconds,
			gradingSessionsActive,
			masteryCacheLookups,
			backendRequestsTotal,
			toastsPublishedTotal,
			toastStreamsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingCommits counts commits labelled success, partial_failure or failure.
func GradingCommits() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingCommitsTotal
}

// AssessmentWrites counts assessment rows labelled success or failure.
func AssessmentWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return assessmentWritesTotal
}

// RecordDuration observes the duration of one grading decision.
func RecordDuration() prometheus.Histogram {
	RegisterMetrics()
	return recordDurationSeconds
}

// GradingSessionsActive tracks the number of live grading sessions.
func GradingSessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return gradingSessionsActive
}

// MasteryCacheLookups counts hit, miss and error cache lookups.
func MasteryCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return masteryCacheLookups
}

// BackendRequests counts outbound requests to the records API.
func BackendRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return backendRequestsTotal
}

// ToastsPublished counts toast messages by kind.
func ToastsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return toastsPublishedTotal
}

// ToastStreamsActive tracks the number of open toast streams.
func ToastStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return toastStreamsActive
}
