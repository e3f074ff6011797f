package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the scraper's Prometheus collectors on a dedicated
// registry. All methods are nil-safe so callers can run without metrics.
type Metrics struct {
	Registry         *prometheus.Registry
	PagesTotal       *prometheus.CounterVec
	RecordsTotal     *prometheus.CounterVec
	DroppedTotal     prometheus.Counter
	FetchErrorsTotal *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	FetchDuration    prometheus.Histogram
}

// New constructs and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing pages visited, by group.",
		},
		[]string{"group"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Records appended to a sink, by stream.",
		},
		[]string{"stream"},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_dropped_total",
			Help: "Records dropped for missing required fields.",
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_errors_total",
			Help: "Fetch failures by error type.",
		},
		[]string{"error_type"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Detail fetch retry attempts scheduled.",
		},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(pages, records, dropped, fetchErrors, retries, fetchDuration)

	return &Metrics{
		Registry:         registry,
		PagesTotal:       pages,
		RecordsTotal:     records,
		DroppedTotal:     dropped,
		FetchErrorsTotal: fetchErrors,
		RetriesTotal:     retries,
		FetchDuration:    fetchDuration,
	}
}

// IncPage counts one visited listing page for a group.
func (m *Metrics) IncPage(group string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(group).Inc()
}

// AddRecords counts records appended to a stream.
func (m *Metrics) AddRecords(stream string, n int) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(stream).Add(float64(n))
}

// IncDropped counts one dropped record.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// IncFetchError counts one fetch failure by type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRetries counts one scheduled retry.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// ObserveFetch records one page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}
