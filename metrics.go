package presscache

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the cache. All recorder
// methods are nil-safe so instrumentation stays optional.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	cacheBytes    prometheus.Gauge
	cacheFiles    prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presscache_requests_total",
		Help: "Requests seen by the cache, by terminal serve state",
	}, []string{"state"})

	storeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presscache_store_failures_total",
		Help: "Soft store failures, by operation",
	}, []string{"op"})

	invalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presscache_invalidations_total",
		Help: "Invalidation runs, by trigger",
	}, []string{"trigger"})

	cacheBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presscache_cache_bytes",
		Help: "Total size of cached artifacts on disk",
	})

	cacheFiles := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presscache_cache_files",
		Help: "Number of cached artifacts on disk",
	})

	registry.MustRegister(requests, storeFailures, invalidations, cacheBytes, cacheFiles)

	return &Metrics{
		registry:      registry,
		requests:      requests,
		storeFailures: storeFailures,
		invalidations: invalidations,
		cacheBytes:    cacheBytes,
		cacheFiles:    cacheFiles,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(state ServeState) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) RecordStoreFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordInvalidation(trigger string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(trigger).Inc()
}

func (m *Metrics) SetStoreSize(totalBytes int64, fileCount int) {
	if m == nil {
		return
	}
	m.cacheBytes.Set(float64(totalBytes))
	m.cacheFiles.Set(float64(fileCount))
}
