package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initFailoverMetrics() {
	r.TransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_state_transitions_total",
			Help: "Total number of goal state assignments",
		},
		[]string{"from", "to"},
	)

	r.FailoversTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_failovers_total",
			Help: "Total number of promotions started, i.e. prepare_promotion assignments",
		},
		[]string{"formation"},
	)

	r.UnhealthyNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "failover_unhealthy_nodes",
			Help: "Number of nodes whose last health probe failed",
		},
	)

	r.GroupReplicationLag = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "failover_group_replication_lag_bytes",
			Help: "Reported LSN distance between the primary and the most recent reporter",
		},
		[]string{"formation", "group"},
	)

	r.EngineInvocationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_engine_invocations_total",
			Help: "Transition engine invocations by outcome",
		},
		[]string{"outcome"}, // assigned, unchanged, error
	)
}
