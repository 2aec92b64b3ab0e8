package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PreloaderMetrics contains all Prometheus metrics related to predictive
// preloading.
type PreloaderMetrics struct {
	QueueDepth      prometheus.Gauge
	Predictions     prometheus.Counter
	Prefetches      prometheus.Counter
	PrefetchErrors  prometheus.Counter
	PrefetchSeconds prometheus.Histogram
	registry        *prometheus.Registry
}

// NewPreloaderMetrics creates a new instance of PreloaderMetrics and
// registers it with the given registry.
func NewPreloaderMetrics(registry *prometheus.Registry) (*PreloaderMetrics, error) {
	m := &PreloaderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register Preloader metrics: %w", err)
	}
	return m, nil
}

func (m *PreloaderMetrics) initMetrics() {
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "preloader_queue_depth",
		Help: "Current number of queued preload entries.",
	})
	m.Predictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preloader_predictions_total",
		Help: "Total number of prediction cycles executed.",
	})
	m.Prefetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preloader_prefetches_total",
		Help: "Total number of URLs prefetched.",
	})
	m.PrefetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preloader_prefetch_errors_total",
		Help: "Total number of prefetch failures.",
	})
	m.PrefetchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "preloader_prefetch_duration_seconds",
		Help:    "Duration of individual URL prefetches in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
}

// SetQueueDepth updates the queued entry gauge.
func (m *PreloaderMetrics) SetQueueDepth(depth float64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(depth)
}

// IncrementPredictions increases the prediction cycle counter by one.
func (m *PreloaderMetrics) IncrementPredictions() {
	if m == nil {
		return
	}
	m.Predictions.Inc()
}

// IncrementPrefetches increases the prefetch counter by one.
func (m *PreloaderMetrics) IncrementPrefetches() {
	if m == nil {
		return
	}
	m.Prefetches.Inc()
}

// IncrementPrefetchErrors increases the prefetch failure counter by one.
func (m *PreloaderMetrics) IncrementPrefetchErrors() {
	if m == nil {
		return
	}
	m.PrefetchErrors.Inc()
}

// ObservePrefetchDuration records the duration of a single prefetch in
// seconds.
func (m *PreloaderMetrics) ObservePrefetchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PrefetchSeconds.Observe(seconds)
}

// Collect implements the prometheus.Collector interface.
func (m *PreloaderMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.QueueDepth
	ch <- m.Predictions
	ch <- m.Prefetches
	ch <- m.PrefetchErrors
	ch <- m.PrefetchSeconds
}

// Describe implements the prometheus.Collector interface.
func (m *PreloaderMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.QueueDepth.Desc()
	ch <- m.Predictions.Desc()
	ch <- m.Prefetches.Desc()
	ch <- m.PrefetchErrors.Desc()
	ch <- m.PrefetchSeconds.Desc()
}
