// Package metrics provides custom Prometheus metrics for the wayfind core
// components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageCacheMetrics contains all Prometheus metrics related to image URL
// resolution.
type ImageCacheMetrics struct {
	CacheSize      prometheus.Gauge
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	NegativeHits   prometheus.Counter
	ProbeRequests  prometheus.Counter
	ProbeErrors    prometheus.Counter
	ResolveSeconds prometheus.Histogram
	registry       *prometheus.Registry
}

// NewImageCacheMetrics creates a new instance of ImageCacheMetrics and
// registers it with the given registry.
func NewImageCacheMetrics(registry *prometheus.Registry) (*ImageCacheMetrics, error) {
	m := &ImageCacheMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageCache metrics: %w", err)
	}
	return m, nil
}

func (m *ImageCacheMetrics) initMetrics() {
	m.CacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "image_cache_size_bytes",
		Help: "Current estimated size of the image URL cache in bytes.",
	})
	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_hits_total",
		Help: "Total number of cache hits.",
	})
	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_misses_total",
		Help: "Total number of cache misses.",
	})
	m.NegativeHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_negative_hits_total",
		Help: "Total number of hits served from negative cache entries.",
	})
	m.ProbeRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_probe_requests_total",
		Help: "Total number of object store path probes.",
	})
	m.ProbeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_cache_probe_errors_total",
		Help: "Total number of unexpected probe errors.",
	})
	m.ResolveSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_cache_resolve_duration_seconds",
		Help:    "Duration of full resolve operations in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
}

// SetCacheSize updates the estimated cache size in bytes.
func (m *ImageCacheMetrics) SetCacheSize(sizeBytes float64) {
	if m == nil {
		return
	}
	m.CacheSize.Set(sizeBytes)
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ImageCacheMetrics) IncrementCacheHits() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ImageCacheMetrics) IncrementCacheMisses() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// IncrementNegativeHits increases the negative cache hit counter by one.
func (m *ImageCacheMetrics) IncrementNegativeHits() {
	if m == nil {
		return
	}
	m.NegativeHits.Inc()
}

// IncrementProbeRequests increases the probe request counter by one.
func (m *ImageCacheMetrics) IncrementProbeRequests() {
	if m == nil {
		return
	}
	m.ProbeRequests.Inc()
}

// IncrementProbeErrors increases the unexpected probe error counter by one.
func (m *ImageCacheMetrics) IncrementProbeErrors() {
	if m == nil {
		return
	}
	m.ProbeErrors.Inc()
}

// ObserveResolveDuration records the duration of a resolve operation in
// seconds.
func (m *ImageCacheMetrics) ObserveResolveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ResolveSeconds.Observe(seconds)
}

// Collect implements the prometheus.Collector interface.
func (m *ImageCacheMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CacheSize
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.NegativeHits
	ch <- m.ProbeRequests
	ch <- m.ProbeErrors
	ch <- m.ResolveSeconds
}

// Describe implements the prometheus.Collector interface.
func (m *ImageCacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CacheSize.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.NegativeHits.Desc()
	ch <- m.ProbeRequests.Desc()
	ch <- m.ProbeErrors.Desc()
	ch <- m.ResolveSeconds.Desc()
}
