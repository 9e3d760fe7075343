package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forecast_data"

// Metrics holds the Prometheus counters, histograms, and gauges for the data service.
type Metrics struct {
	// Domain load metrics.
	LoadAttempts *prometheus.CounterVec   // labels: domain, outcome={success,failure,skipped}
	LoadDuration *prometheus.HistogramVec // labels: domain
	DomainState  *prometheus.GaugeVec     // labels: domain, state={empty,loading,loaded,failed}

	// Singleton cache metrics.
	CacheRequests *prometheus.CounterVec // labels: cache, result={hit,miss,shared,error}

	// Source metrics.
	SourceRequests      *prometheus.CounterVec   // labels: source={file,http}, outcome={success,error}
	SourceFetchDuration *prometheus.HistogramVec // labels: source
	SourceBytes         *prometheus.CounterVec   // labels: source

	// State change fan-out.
	EventsPublished    prometheus.Counter
	EventPublishErrors prometheus.Counter
	EventsDropped      prometheus.Counter

	WatchReloads *prometheus.CounterVec // labels: domain
}

func newMetrics() *Metrics {
	return &Metrics{
		LoadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_attempts_total",
			Help:      "Domain load calls by domain and outcome.",
		}, []string{"domain", "outcome"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of a domain fetch-normalize-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"domain"}),
		DomainState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "domain_state",
			Help:      "1 for the current load state of each domain, 0 otherwise.",
		}, []string{"domain", "state"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Singleton cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Static asset fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Static asset fetch duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		SourceBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_bytes_total",
			Help:      "Bytes read from static asset sources.",
		}, []string{"source"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain state changes written to the events topic.",
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Domain state changes that failed to publish.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "State changes dropped because a subscriber buffer was full.",
		}),
		WatchReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_reloads_total",
			Help:      "Domain reloads triggered by data directory changes.",
		}, []string{"domain"}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LoadAttempts,
		m.LoadDuration,
		m.DomainState,
		m.CacheRequests,
		m.SourceRequests,
		m.SourceFetchDuration,
		m.SourceBytes,
		m.EventsPublished,
		m.EventPublishErrors,
		m.EventsDropped,
		m.WatchReloads,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// multiple tests can each build their own without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
