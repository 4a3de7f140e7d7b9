// Package metrics exports driver activity as Prometheus metrics and
// OpenTelemetry spans.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats owns a private registry and the driver collectors registered on it.
type Stats struct {
	registry *prometheus.Registry

	Operations       *prometheus.CounterVec
	OperationSeconds *prometheus.HistogramVec
	Patterns         prometheus.Gauge
	RetrievedSamples prometheus.Histogram
}

// NewStats creates a registry with the driver collectors plus the Go runtime
// and process collectors.
func NewStats() *Stats {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Stats{
		registry: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wgfmu_operations_total",
			Help: "Driver operations by name and resulting status",
		}, []string{"op", "status"}),
		OperationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wgfmu_operation_duration_seconds",
			Help:    "Driver operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 11), // 10us to ~10.5s, past the settling delay
		}, []string{"op"}),
		Patterns: f.NewGauge(prometheus.GaugeOpts{
			Name: "wgfmu_patterns",
			Help: "Patterns currently held in the simulator store",
		}),
		RetrievedSamples: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wgfmu_retrieved_samples",
			Help:    "Samples returned per successful retrieval",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1 to ~262k
		}),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// statusLabel maps a driver error to a bounded label value.
func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var st wgfmu.Status
	if errors.As(err, &st) {
		return strconv.Itoa(int(st))
	}
	if errors.Is(err, wgfmu.ErrUnidentified) {
		return "unidentified"
	}
	return "error"
}
