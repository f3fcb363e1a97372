package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the analyzer. Each instance owns
// its registry so several can coexist in one process (tests, embedded use).
//
// All recording methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	whoisLookups     *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	sourceFailures   prometheus.Counter
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phishing_risk_analyses_total",
			Help: "Total number of analyzed emails by overall level",
		}, []string{"level"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "phishing_risk_analysis_duration_seconds",
			Help:    "Time spent analyzing one email",
			Buckets: prometheus.DefBuckets,
		}),
		whoisLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phishing_risk_whois_lookups_total",
			Help: "Total number of registration lookups by result",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phishing_risk_registration_cache_total",
			Help: "Total number of registration cache lookups by result",
		}, []string{"result"}),
		sourceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phishing_risk_source_failures_total",
			Help: "Total number of email sources that could not be read",
		}),
	}

	m.registry.MustRegister(
		m.analyses,
		m.analysisDuration,
		m.whoisLookups,
		m.cacheLookups,
		m.sourceFailures,
	)
	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis records one finished analysis
func (m *Metrics) ObserveAnalysis(level string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(level).Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
}

// RecordLookup records the outcome of one registration lookup ("ok", "not_found", "error")
func (m *Metrics) RecordLookup(result string) {
	if m == nil {
		return
	}
	m.whoisLookups.WithLabelValues(result).Inc()
}

// RecordCache records the outcome of one cache read ("hit", "miss", "error")
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordSourceFailure counts an email source that could not be read
func (m *Metrics) RecordSourceFailure() {
	if m == nil {
		return
	}
	m.sourceFailures.Inc()
}
