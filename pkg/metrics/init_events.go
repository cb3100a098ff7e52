package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEventMetrics() {
	r.EventsEmittedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_events_emitted_total",
			Help: "Total number of events published per channel",
		},
		[]string{"channel"}, // state, log
	)

	r.EventSubscriberDropsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "failover_event_subscriber_drops_total",
			Help: "Events lost by subscribers that fell behind",
		},
	)
}

func (r *Registry) initProbeMetrics() {
	r.ProbesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_health_probes_total",
			Help: "Total number of node health probes",
		},
		[]string{"result"}, // good, bad
	)

	r.ProbeDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "failover_health_probe_duration_seconds",
			Help:    "Node health probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
}
