// Package metrics provides Prometheus collectors for the showcase components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ManifestMetrics tracks manifest fetches and the loader cache.
type ManifestMetrics struct {
	FetchAttempts *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	FetchDuration prometheus.Histogram
	Entries       prometheus.Gauge
}

// NewManifestMetrics creates and registers the manifest collectors.
func NewManifestMetrics(registry prometheus.Registerer) (*ManifestMetrics, error) {
	m := &ManifestMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register Manifest metrics: %w", err)
	}
	return m, nil
}

func (m *ManifestMetrics) initMetrics() {
	m.FetchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "showcase_manifest_fetch_attempts_total",
		Help: "Total number of manifest fetch attempts, by attempt number.",
	}, []string{"attempt"})

	m.FetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "showcase_manifest_fetch_failures_total",
		Help: "Total number of failed manifest fetch attempts, by error category.",
	}, []string{"category"})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "showcase_manifest_cache_hits_total",
		Help: "Total number of loads served from the manifest cache.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "showcase_manifest_cache_misses_total",
		Help: "Total number of loads that had to fetch the manifest.",
	})

	m.FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "showcase_manifest_fetch_duration_seconds",
		Help:    "Duration of successful manifest fetches in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	m.Entries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "showcase_manifest_entries",
		Help: "Number of entries in the cached manifest.",
	})
}

// RecordAttempt counts one fetch attempt (1-based).
func (m *ManifestMetrics) RecordAttempt(attempt int) {
	m.FetchAttempts.WithLabelValues(fmt.Sprint(attempt)).Inc()
}

// RecordFailure counts one failed attempt.
func (m *ManifestMetrics) RecordFailure(category string) {
	m.FetchFailures.WithLabelValues(category).Inc()
}

func (m *ManifestMetrics) RecordCacheHit()  { m.CacheHits.Inc() }
func (m *ManifestMetrics) RecordCacheMiss() { m.CacheMisses.Inc() }

// RecordSuccess observes the fetch duration and the manifest size.
func (m *ManifestMetrics) RecordSuccess(durationSeconds float64, entries int) {
	m.FetchDuration.Observe(durationSeconds)
	m.Entries.Set(float64(entries))
}

// Collect implements the prometheus.Collector interface.
func (m *ManifestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FetchAttempts.Collect(ch)
	m.FetchFailures.Collect(ch)
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.FetchDuration
	ch <- m.Entries
}

// Describe implements the prometheus.Collector interface.
func (m *ManifestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FetchAttempts.Describe(ch)
	m.FetchFailures.Describe(ch)
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.FetchDuration.Desc()
	ch <- m.Entries.Desc()
}
