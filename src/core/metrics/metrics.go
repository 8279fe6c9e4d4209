package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ocrRequests      *prometheus.CounterVec
	ocrLatency       prometheus.Histogram
	analyticsErrors  prometheus.Counter
	cacheLookups     *prometheus.CounterVec
	updateBroadcasts prometheus.Counter
	guidanceTicks    *prometheus.CounterVec
	uploads          *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ocrRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_ocr_requests_total",
			Help: "OCR proxy requests by result",
		}, []string{"result"}),
		ocrLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_ocr_duration_seconds",
			Help:    "Time spent calling the OCR provider",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		analyticsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipt_analytics_write_errors_total",
			Help: "Analytics log writes that failed or timed out",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_offline_cache_lookups_total",
			Help: "Offline cache lookups by policy and outcome",
		}, []string{"policy", "outcome"}),
		updateBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipt_update_broadcasts_total",
			Help: "UPDATE_AVAILABLE broadcasts sent to clients",
		}),
		guidanceTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_guidance_ticks_total",
			Help: "Guidance loop ticks by outcome",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_uploads_total",
			Help: "Client uploads by outcome kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.ocrRequests,
		m.ocrLatency,
		m.analyticsErrors,
		m.cacheLookups,
		m.updateBroadcasts,
		m.guidanceTicks,
		m.uploads,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns the HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveOCR(success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.ocrRequests.WithLabelValues(result).Inc()
	m.ocrLatency.Observe(d.Seconds())
}

func (m *Metrics) AnalyticsWriteFailed() {
	if m == nil {
		return
	}
	m.analyticsErrors.Inc()
}

func (m *Metrics) CacheLookup(policy, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) UpdateBroadcast() {
	if m == nil {
		return
	}
	m.updateBroadcasts.Inc()
}

func (m *Metrics) GuidanceTick(outcome string) {
	if m == nil {
		return
	}
	m.guidanceTicks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Upload(kind string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind).Inc()
}
