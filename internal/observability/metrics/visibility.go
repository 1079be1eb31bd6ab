package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VisibilityMetrics tracks visibility sessions and frame commands.
type VisibilityMetrics struct {
	ActiveSessions prometheus.Gauge
	Sessions       prometheus.Counter
	Commands       *prometheus.CounterVec
	LoadedFrames   prometheus.Histogram
}

// NewVisibilityMetrics creates and registers the visibility collectors.
func NewVisibilityMetrics(registry prometheus.Registerer) (*VisibilityMetrics, error) {
	m := &VisibilityMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "showcase_visibility_sessions_active",
			Help: "Number of live visibility sessions.",
		}),
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "showcase_visibility_sessions_total",
			Help: "Total number of visibility sessions created.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_visibility_commands_total",
			Help: "Frame commands issued, by action.",
		}, []string{"action"}),
		LoadedFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "showcase_visibility_loaded_frames",
			Help:    "Working set size observed after each intersection batch.",
			Buckets: prometheus.LinearBuckets(0, 4, 8),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register Visibility metrics: %w", err)
	}
	return m, nil
}

func (m *VisibilityMetrics) SessionCreated() {
	m.Sessions.Inc()
	m.ActiveSessions.Inc()
}

func (m *VisibilityMetrics) SessionExpired() {
	m.ActiveSessions.Dec()
}

// RecordCommand counts one issued frame command.
func (m *VisibilityMetrics) RecordCommand(action string) {
	m.Commands.WithLabelValues(action).Inc()
}

func (m *VisibilityMetrics) ObserveLoaded(n int) {
	m.LoadedFrames.Observe(float64(n))
}

// Collect implements the prometheus.Collector interface.
func (m *VisibilityMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ActiveSessions
	ch <- m.Sessions
	m.Commands.Collect(ch)
	ch <- m.LoadedFrames
}

// Describe implements the prometheus.Collector interface.
func (m *VisibilityMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ActiveSessions.Desc()
	ch <- m.Sessions.Desc()
	m.Commands.Describe(ch)
	ch <- m.LoadedFrames.Desc()
}
