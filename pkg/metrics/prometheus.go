// Package metrics provides Prometheus metrics for the valuation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors of the service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets   []float64
	candidateBuckets []float64
	registry         prometheus.Registerer

	// Valuation
	valuations        *prometheus.CounterVec
	valuationLatency  prometheus.Histogram
	candidatesScanned prometheus.Histogram
	staleExcluded     prometheus.Counter
	warnings          *prometheus.CounterVec

	// Comparable ingest
	imports          *prometheus.CounterVec
	comparablesTotal prometheus.Gauge

	// Comp sets
	compsetConflicts prometheus.Counter

	// Repository
	repositoryQueryLatency  prometheus.Histogram
	repositoryImportLatency prometheus.Histogram

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueRejected           prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record*/Update* helpers

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // exported through GetRegistry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "comparo",
		subsystem:        "avm",
		latencyBuckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		candidateBuckets: prometheus.ExponentialBuckets(1, 2, 12),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.valuations = m.counterVec("valuations_total",
		"Valuations computed by score method and outcome", "method", "outcome")
	m.valuationLatency = m.histogram("valuation_latency_milliseconds",
		"End to end valuation latency in milliseconds", m.latencyBuckets)
	m.candidatesScanned = m.histogram("valuation_candidates",
		"Candidate comparables considered per valuation", m.candidateBuckets)
	m.staleExcluded = m.counter("stale_excluded_total",
		"Comparables excluded from valuations for exceeding the recency limit")
	m.warnings = m.counterVec("warnings_total", "Valuation warnings by code", "code")

	m.imports = m.counterVec("imports_total",
		"Comparable import attempts by result", "result")
	m.comparablesTotal = m.gauge("comparables_total", "Comparables currently stored")

	m.compsetConflicts = m.counter("compset_conflicts_total",
		"Comp set updates rejected because of a version mismatch")

	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Comparable query latency in milliseconds", m.latencyBuckets)
	m.repositoryImportLatency = m.histogram("repository_import_latency_milliseconds",
		"Comparable import latency in milliseconds", m.latencyBuckets)

	m.queueSize = m.gauge("ingest_queue_size", "Records waiting in the ingest queue")
	m.queueCapacity = m.gauge("ingest_queue_capacity", "Ingest queue capacity")
	m.queueEnqueued = m.counter("ingest_enqueued_total", "Records accepted by the ingest queue")
	m.queueRejected = m.counter("ingest_rejected_total", "Records rejected because the ingest queue was full")
	m.workerCount = m.gauge("ingest_worker_count", "Running ingest workers")
	m.workerProcessingLatency = m.histogram("ingest_processing_latency_milliseconds",
		"Time to import one record in milliseconds", m.latencyBuckets)
	m.workerErrors = m.counter("ingest_errors_total", "Records the ingest workers failed to import")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordValuation counts a finished valuation. Outcome is "ok" or an error kind.
func RecordValuation(method, outcome string) {
	globalManager.valuations.WithLabelValues(method, outcome).Inc()
}

// RecordValuationLatency records the valuation latency in milliseconds.
func RecordValuationLatency(latencyMs float64) {
	globalManager.valuationLatency.Observe(latencyMs)
}

// RecordCandidates records how many candidates a valuation considered.
func RecordCandidates(n int) {
	globalManager.candidatesScanned.Observe(float64(n))
}

// RecordStaleExcluded adds n stale exclusions.
func RecordStaleExcluded(n int) {
	if n > 0 {
		globalManager.staleExcluded.Add(float64(n))
	}
}

// RecordWarning counts a warning by code.
func RecordWarning(code string) {
	globalManager.warnings.WithLabelValues(code).Inc()
}

// RecordImport counts an import attempt: accepted, duplicate, invalid or failed.
func RecordImport(result string) {
	globalManager.imports.WithLabelValues(result).Inc()
}

// UpdateComparablesTotal sets the number of stored comparables.
func UpdateComparablesTotal(n int) {
	globalManager.comparablesTotal.Set(float64(n))
}

// RecordCompSetConflict counts an optimistic concurrency failure.
func RecordCompSetConflict() {
	globalManager.compsetConflicts.Inc()
}

// RecordRepositoryQueryLatency records a comparable query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordRepositoryImportLatency records a comparable import latency.
func RecordRepositoryImportLatency(latencyMs float64) {
	globalManager.repositoryImportLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the ingest backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the ingest queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted record.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a record dropped for backpressure.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records the import time of one record.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed import.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
