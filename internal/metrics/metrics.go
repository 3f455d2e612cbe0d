// Package metrics exposes Prometheus collectors for the pipeline.
//
// All methods are safe on a nil *Metrics so components can be built
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "b3cast"

// Metrics holds the collectors registered on one registry
type Metrics struct {
	Registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	fitDuration      prometheus.Histogram
	fits             *prometheus.CounterVec
	pipelineOutcomes *prometheus.CounterVec
	catalogFallbacks prometheus.Counter
	probes           *prometheus.CounterVec
}

// New creates collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by key prefix and result (hit, miss).",
		}, []string{"prefix", "result"}),
		providerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider requests by provider, endpoint and status.",
		}, []string{"provider", "endpoint", "status"}),
		fitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_fit_duration_seconds",
			Help:      "Time spent fitting the forecast model.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		fits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_fits_total",
			Help:      "Forecast fits by status.",
		}, []string{"status"}),
		pipelineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Prediction requests by outcome (ok or failure kind).",
		}, []string{"outcome"}),
		catalogFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fallbacks_total",
			Help:      "Times the hardcoded symbol list was served instead of the live catalog.",
		}),
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticker_probes_total",
			Help:      "Ticker validation probes by result (valid, invalid).",
		}, []string{"result"}),
	}
}

// ObserveCacheLookup records a cache hit or miss
func (m *Metrics) ObserveCacheLookup(prefix string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(prefix, result).Inc()
}

// ObserveProviderRequest records one upstream request
func (m *Metrics) ObserveProviderRequest(provider, endpoint string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.providerRequests.WithLabelValues(provider, endpoint, status).Inc()
}

// ObserveFit records one model fit
func (m *Metrics) ObserveFit(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.fits.WithLabelValues(status).Inc()
	m.fitDuration.Observe(elapsed.Seconds())
}

// ObservePipeline records a request outcome; empty outcome means success
func (m *Metrics) ObservePipeline(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.pipelineOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveCatalogFallback records a degraded catalog
func (m *Metrics) ObserveCatalogFallback() {
	if m == nil {
		return
	}
	m.catalogFallbacks.Inc()
}

// ObserveProbe records a validator probe
func (m *Metrics) ObserveProbe(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.probes.WithLabelValues(result).Inc()
}
