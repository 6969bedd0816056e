package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mri"

// Metrics holds the Prometheus counters, histograms, and gauges for the index service.
type Metrics struct {
	Requests     *prometheus.CounterVec // labels: endpoint={mapid,point,center,layer}, outcome={success,error}
	EngineReady  prometheus.Gauge
	ExportEvents *prometheus.CounterVec // labels: outcome={success,error}

	// Terminal evaluations.
	EvaluationDuration *prometheus.HistogramVec // labels: op={evaluate,getMap} per engine call, {map_export,point_query} per request
	EvaluationErrors   *prometheus.CounterVec   // labels: op

	// Region resolution.
	RegionLookups *prometheus.CounterVec // labels: outcome={success,not_found,error}
	RegionCache   *prometheus.CounterVec // labels: tier={memory,disk}, result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_ready",
			Help:      "1 once the engine session is established, 0 otherwise.",
		}),
		ExportEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_events_total",
			Help:      "Map export events published by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of terminal engine evaluations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Failed terminal engine evaluations.",
		}, []string{"op"}),
		RegionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_lookups_total",
			Help:      "Region resolutions by outcome.",
		}, []string{"outcome"}),
		RegionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_cache_total",
			Help:      "Region cache lookups by tier and result.",
		}, []string{"tier", "result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Requests,
		m.EngineReady,
		m.ExportEvents,
		m.EvaluationDuration,
		m.EvaluationErrors,
		m.RegionLookups,
		m.RegionCache,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
