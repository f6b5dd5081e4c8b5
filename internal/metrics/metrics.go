package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Similarity scan metrics
	ScansTotal        prometheus.Counter
	ScanDuration      prometheus.Histogram
	CandidatesFound   prometheus.Counter
	ScanErrorsTotal   prometheus.Counter
	ScansSkippedTotal *prometheus.CounterVec

	// Consolidation metrics
	ConsolidationsTotal *prometheus.CounterVec
	UndosTotal          prometheus.Counter

	// LLM metrics
	LLMCallsTotal   *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec

	// Maintenance metrics
	MaintenanceRunsTotal    *prometheus.CounterVec
	MaintenanceRunDuration  prometheus.Histogram
	LinksPrunedTotal        prometheus.Counter
	LinksEnrichedTotal      prometheus.Counter
	OrphansReconnectedTotal prometheus.Counter

	// Corpus state
	MemoriesLive prometheus.Gauge
	LinksTotal   prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Similarity scan metrics
		ScansTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_scans_total",
				Help: "Total number of similarity scans",
			},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mnemo_scan_duration_seconds",
				Help:    "Duration of similarity scans in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		CandidatesFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_candidates_found_total",
				Help: "Total number of consolidation candidates found",
			},
		),
		ScanErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_scan_errors_total",
				Help: "Total number of failed similarity scans",
			},
		),
		ScansSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemo_scans_skipped_total",
				Help: "Total number of scans short-circuited by a guard",
			},
			[]string{"guard"},
		),

		// Consolidation metrics
		ConsolidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemo_consolidations_total",
				Help: "Total number of consolidation actions applied",
			},
			[]string{"action", "status"},
		),
		UndosTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_undos_total",
				Help: "Total number of consolidations undone",
			},
		),

		// LLM metrics
		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemo_llm_calls_total",
				Help: "Total number of LLM calls",
			},
			[]string{"purpose", "status"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mnemo_llm_call_duration_seconds",
				Help:    "Duration of LLM calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"purpose"},
		),

		// Maintenance metrics
		MaintenanceRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemo_maintenance_runs_total",
				Help: "Total number of maintenance pipeline runs",
			},
			[]string{"status"},
		),
		MaintenanceRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mnemo_maintenance_run_duration_seconds",
				Help:    "Duration of maintenance pipeline runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LinksPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_links_pruned_total",
				Help: "Total number of links pruned",
			},
		),
		LinksEnrichedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_links_enriched_total",
				Help: "Total number of links enriched",
			},
		),
		OrphansReconnectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemo_orphans_reconnected_total",
				Help: "Total number of orphan memories reconnected",
			},
		),

		// Corpus state
		MemoriesLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mnemo_memories_live",
				Help: "Number of live memories",
			},
		),
		LinksTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mnemo_links_total",
				Help: "Number of links in the graph",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Similarity scan metrics
	m.registry.MustRegister(m.ScansTotal)
	m.registry.MustRegister(m.ScanDuration)
	m.registry.MustRegister(m.CandidatesFound)
	m.registry.MustRegister(m.ScanErrorsTotal)
	m.registry.MustRegister(m.ScansSkippedTotal)

	// Consolidation metrics
	m.registry.MustRegister(m.ConsolidationsTotal)
	m.registry.MustRegister(m.UndosTotal)

	// LLM metrics
	m.registry.MustRegister(m.LLMCallsTotal)
	m.registry.MustRegister(m.LLMCallDuration)

	// Maintenance metrics
	m.registry.MustRegister(m.MaintenanceRunsTotal)
	m.registry.MustRegister(m.MaintenanceRunDuration)
	m.registry.MustRegister(m.LinksPrunedTotal)
	m.registry.MustRegister(m.LinksEnrichedTotal)
	m.registry.MustRegister(m.OrphansReconnectedTotal)

	// Corpus state
	m.registry.MustRegister(m.MemoriesLive)
	m.registry.MustRegister(m.LinksTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
