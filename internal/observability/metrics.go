// Package observability provides metrics and monitoring capabilities for the showcase service.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/showcase/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Manifest   *metrics.ManifestMetrics
	Visibility *metrics.VisibilityMetrics
	HTTP       *metrics.HTTPMetrics
}

// NewMetrics creates a registry with the process and Go collectors plus every
// component collector.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	manifestMetrics, err := metrics.NewManifestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Manifest metrics: %w", err)
	}

	visibilityMetrics, err := metrics.NewVisibilityMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Visibility metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Manifest:   manifestMetrics,
		Visibility: visibilityMetrics,
		HTTP:       httpMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
		Registry:      m.registry,
	})
}
