package events

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/metrics"
	"github.com/dd0wney/cluso-failover/pkg/pubsub"
)

// Sink persists events. The postgres store implements it with an events table
// and pg_notify, the in-memory store with a slice.
type Sink interface {
	// InsertEvent persists one event and returns its id in total order
	InsertEvent(ctx context.Context, change *StateChange) (int64, error)
}

// Emitter turns engine assignments into persisted events and notifications on
// the state and log channels. Persistence comes first, a failed insert aborts
// publication.
type Emitter struct {
	sink    Sink
	bus     *pubsub.PubSub
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewEmitter creates an event emitter
func NewEmitter(sink Sink, bus *pubsub.PubSub, logger logging.Logger) *Emitter {
	return &Emitter{
		sink:    sink,
		bus:     bus,
		logger:  logger.With(logging.Component("events")),
		metrics: metrics.DefaultRegistry(),
	}
}

// NotifyStateChange persists the event and publishes it on the state channel,
// with its description duplicated on the log channel.
func (e *Emitter) NotifyStateChange(ctx context.Context, change *StateChange) (int64, error) {
	eventID, err := e.sink.InsertEvent(ctx, change)
	if err != nil {
		return 0, fmt.Errorf("failed to persist event: %w", err)
	}
	change.EventID = eventID

	e.Publish(change)

	return eventID, nil
}

// Publish announces an already-persisted event on the state and log channels.
// Used by the coordinator after committing a batch of assignments in one
// transaction.
func (e *Emitter) Publish(change *StateChange) {
	dropped := e.bus.Publish(ChannelState, change)
	e.metrics.RecordEventEmitted(ChannelState, dropped)

	e.LogAndNotifyMessage(change.Description,
		logging.Formation(change.FormationID),
		logging.Group(change.GroupID),
		logging.NodeName(change.NodeName),
		logging.GoalState(change.GoalState.String()))
}

// LogAndNotifyMessage emits the message both as a log entry and as a
// notification on the log channel.
func (e *Emitter) LogAndNotifyMessage(message string, fields ...logging.Field) {
	e.logger.Info(message, fields...)

	dropped := e.bus.Publish(ChannelLog, message)
	e.metrics.RecordEventEmitted(ChannelLog, dropped)
}
