package metrics

import (
	"strconv"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordOperation records a coordinator operation
func (r *Registry) RecordOperation(operation, status string, duration time.Duration) {
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransition records one goal state assignment
func (r *Registry) RecordTransition(from, to string) {
	r.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordFailoverStart marks the beginning of a promotion in a formation
func (r *Registry) RecordFailoverStart(formation string) {
	r.FailoversTotal.WithLabelValues(formation).Inc()
}

// RecordEngineOutcome records whether an engine invocation produced
// assignments
func (r *Registry) RecordEngineOutcome(outcome string) {
	r.EngineInvocationsTotal.WithLabelValues(outcome).Inc()
}

// RecordEventEmitted counts one event on a channel plus the subscribers that
// missed it
func (r *Registry) RecordEventEmitted(channel string, dropped int) {
	r.EventsEmittedTotal.WithLabelValues(channel).Inc()
	if dropped > 0 {
		r.EventSubscriberDropsTotal.Add(float64(dropped))
	}
}

// RecordProbe records one node health probe
func (r *Registry) RecordProbe(result string, duration time.Duration) {
	r.ProbesTotal.WithLabelValues(result).Inc()
	r.ProbeDuration.Observe(duration.Seconds())
}

// SetGroupReplicationLag updates the lag gauge for a group
func (r *Registry) SetGroupReplicationLag(formation string, group int, lagBytes float64) {
	r.GroupReplicationLag.WithLabelValues(formation, strconv.Itoa(group)).Set(lagBytes)
}
