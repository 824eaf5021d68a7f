package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	RowsExtractedTotal *prometheus.CounterVec
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitibrasil_requests_total",
			Help: "Total page requests issued, by category and outcome.",
		},
		[]string{"category", "outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitibrasil_request_duration_seconds",
			Help:    "HTTP request latency for page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rowsExtracted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitibrasil_rows_extracted_total",
			Help: "Total table rows extracted, by category.",
		},
		[]string{"category"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vitibrasil_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitibrasil_errors_total",
			Help: "Total number of failed queries by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, rowsExtracted, retries, errorsTotal)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		RowsExtractedTotal: rowsExtracted,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(category, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRows increments the extracted rows counter.
func (m *Metrics) AddRows(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsExtractedTotal.WithLabelValues(category).Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
