package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetching and cleaning runs.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	DroppedTotal    *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Listings seen by the pipeline, by stage outcome.",
		},
		[]string{"stage"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_dropped_total",
			Help: "Listings dropped during normalization, by reason.",
		},
		[]string{"reason"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Scraping runs by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, errorsTotal, records, dropped, runs)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ErrorsTotal:     errorsTotal,
		RecordsTotal:    records,
		DroppedTotal:    dropped,
		RunsTotal:       runs,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddExtracted counts records that passed the inclusion rule.
func (m *Metrics) AddExtracted(n int) {
	m.addRecords("extracted", n)
}

// AddSkipped counts containers missing a name or a price.
func (m *Metrics) AddSkipped(n int) {
	m.addRecords("skipped", n)
}

// AddImputed counts records whose rating was filled in.
func (m *Metrics) AddImputed(n int) {
	m.addRecords("imputed", n)
}

// AddDropped counts records removed during normalization.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedTotal.WithLabelValues(reason).Add(float64(n))
}

// IncRun records the outcome of a run.
func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) addRecords(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(stage).Add(float64(n))
}
