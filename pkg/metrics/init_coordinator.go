package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCoordinatorMetrics() {
	r.OperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_coordinator_operations_total",
			Help: "Total number of coordinator operations",
		},
		[]string{"operation", "status"}, // register, node_active, remove, set_settings
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "failover_coordinator_operation_duration_seconds",
			Help:    "Coordinator operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	r.NodesRegistered = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "failover_nodes_registered",
			Help: "Number of registered nodes per formation",
		},
		[]string{"formation"},
	)
}
