// Package metrics defines the Prometheus collectors for ingestion runs and
// queries, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	BatchesTotal       *prometheus.CounterVec
	BytesTotal         prometheus.Counter
	RecordsTotal       prometheus.Counter
	AcknowledgedTotal  prometheus.Counter
	RetriesTotal       prometheus.Counter
	AttemptsPerBatch   prometheus.Histogram
	UploadLatency      *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	ActiveWorkers      prometheus.Gauge
	QueriesTotal       *prometheus.CounterVec
	QueryLatency       *prometheus.HistogramVec
	QueryHitCount      prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	RunSummariesFailed *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. A nil reg registers
// on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strobe_batches_total",
				Help: "Batches resolved by outcome (ok, dropped).",
			},
			[]string{"schema", "outcome"},
		),
		BytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strobe_bytes_total",
				Help: "Payload bytes delivered successfully.",
			},
		),
		RecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strobe_records_total",
				Help: "Records delivered successfully.",
			},
		),
		AcknowledgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strobe_acknowledged_total",
				Help: "Records the server reported as ingested via X-Ingested.",
			},
		),
		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strobe_retries_total",
				Help: "Upload attempts beyond the first.",
			},
		),
		AttemptsPerBatch: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "strobe_attempts_per_batch",
				Help:    "Attempts needed to resolve a batch.",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 11},
			},
		),
		UploadLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strobe_upload_duration_seconds",
				Help:    "Latency of a single upload attempt in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "strobe_queue_depth",
				Help: "Batches waiting in the bounded queue.",
			},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "strobe_active_workers",
				Help: "Upload workers currently running.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strobe_queries_total",
				Help: "Queries by result (ok, rejected, error).",
			},
			[]string{"result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strobe_query_duration_seconds",
				Help:    "Query round-trip latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryHitCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "strobe_query_hit_count",
				Help:    "hit_count reported per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strobe_cache_hits_total",
				Help: "Query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "strobe_cache_misses_total",
				Help: "Query cache misses.",
			},
		),
		RunSummariesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strobe_run_summary_failures_total",
				Help: "Run summaries a sink failed to record.",
			},
			[]string{"sink"},
		),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.BytesTotal,
		m.RecordsTotal,
		m.AcknowledgedTotal,
		m.RetriesTotal,
		m.AttemptsPerBatch,
		m.UploadLatency,
		m.QueueDepth,
		m.ActiveWorkers,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryHitCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RunSummariesFailed,
	)

	return m
}

// NewUnregistered returns collectors on a private registry, for tests and
// for commands that do not expose a scrape endpoint.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the scrape handler for g. A nil g serves the default
// gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
