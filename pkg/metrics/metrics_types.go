package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the monitor
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Coordinator Metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	NodesRegistered   *prometheus.GaugeVec

	// Failover Metrics
	TransitionsTotal       *prometheus.CounterVec
	FailoversTotal         *prometheus.CounterVec
	UnhealthyNodes         prometheus.Gauge
	GroupReplicationLag    *prometheus.GaugeVec
	EngineInvocationsTotal *prometheus.CounterVec

	// Event Metrics
	EventsEmittedTotal        *prometheus.CounterVec
	EventSubscriberDropsTotal prometheus.Counter

	// Health Probe Metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration prometheus.Histogram

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initHTTPMetrics()
	r.initCoordinatorMetrics()
	r.initFailoverMetrics()
	r.initEventMetrics()
	r.initProbeMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
