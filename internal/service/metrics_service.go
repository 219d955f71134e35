package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcomes recorded by score_publish_total.
const (
	PublishResultSuccess = "success"
	PublishResultFailure = "failure"
	PublishResultRetried = "retried"
	PublishResultDropped = "exhausted"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface, the pool cache and the
// assignment lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	sweeperTicks        prometheus.Counter
	sweeperFinished     prometheus.Counter
	sweeperFailures     prometheus.Counter
	sweeperTickDuration prometheus.Observer
	scorePublish        *prometheus.CounterVec
	samplerFallbacks    prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

const metricsNamespace = "lti"

// NewMetricsService registers the HTTP, pool cache and lifecycle collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return factory.NewHistogram(prometheus.HistogramOpts{Namespace: metricsNamespace, Name: name, Help: help, Buckets: prometheus.DefBuckets})
	}
	httpLabels := []string{"method", "path", "status"}

	m := &MetricsService{
		registry: registry,
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, httpLabels),
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, httpLabels),

		cacheLatency: histogram("pool_cache_read_seconds", "Latency of quiz pool cache reads"),
		cacheWrite:   histogram("pool_cache_write_seconds", "Latency of quiz pool cache writes"),
		cacheHitRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pool_cache_hit_ratio",
			Help:      "Share of quiz pool reads served from cache",
		}),
		cacheHits:   counter("pool_cache_hits_total", "Quiz pool reads served from cache"),
		cacheMisses: counter("pool_cache_misses_total", "Quiz pool reads that fell through to the database"),

		sweeperTicks:        counter("sweeper_ticks_total", "Expiry sweeper ticks executed"),
		sweeperFinished:     counter("sweeper_assignments_finished_total", "Assignments closed by the expiry sweeper"),
		sweeperFailures:     counter("sweeper_failures_total", "Per-assignment failures isolated by the expiry sweeper"),
		sweeperTickDuration: histogram("sweeper_tick_duration_seconds", "Duration of expiry sweeper ticks"),
		scorePublish: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "score_publish_total",
			Help:      "Score pushes to the learning platform by result",
		}, []string{"result"}),
		samplerFallbacks: counter("quiz_sampler_fallbacks_total", "Self-authored tasks served because a tier had no other candidate"),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSweep records one sweeper tick.
func (m *MetricsService) ObserveSweep(finished, failures int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeperTicks.Inc()
	m.sweeperFinished.Add(float64(finished))
	m.sweeperFailures.Add(float64(failures))
	m.sweeperTickDuration.Observe(duration.Seconds())
}

// RecordScorePublish counts one score push outcome.
func (m *MetricsService) RecordScorePublish(result string) {
	if m == nil {
		return
	}
	m.scorePublish.WithLabelValues(result).Inc()
}

// RecordSamplerFallbacks counts self-authored tasks served to their author.
func (m *MetricsService) RecordSamplerFallbacks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samplerFallbacks.Add(float64(n))
}
