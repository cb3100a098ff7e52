package events

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/fsm"
)

// The monitor notifies on two channels about every event it produces:
//
//   - ChannelState carries one machine-parseable payload per goal state
//     assignment
//
//   - ChannelLog duplicates the human-readable messages, so a monitor client
//     can follow the chatter without access to the server logs
const (
	ChannelState = "state"
	ChannelLog   = "log"
)

// StateChange is the structured event recorded for every goal state
// assignment. Events are totally ordered within a formation by their
// persistence order, EventID carries that order.
type StateChange struct {
	EventID     int64     `json:"event_id"`
	EventTime   time.Time `json:"event_time"`
	FormationID string    `json:"formation_id"`
	GroupID     int       `json:"group_id"`
	NodeID      int64     `json:"node_id"`
	NodeName    string    `json:"node_name"`
	NodePort    int       `json:"node_port"`

	ReportedState fsm.ReplicationState `json:"reported_state"`
	GoalState     fsm.ReplicationState `json:"goal_state"`
	SyncState     fsm.SyncState        `json:"sync_state"`
	ReportedLSN   uint64               `json:"reported_lsn"`

	CandidatePriority int    `json:"candidate_priority"`
	ReplicationQuorum bool   `json:"replication_quorum"`
	Description       string `json:"description"`
}

// StatePayload encodes the state-channel notification. String lengths are
// included in the payload instead of escaping dots and colons out of the
// formation and node names, parsing stays a simple scan on the receiving
// side.
func (c *StateChange) StatePayload() string {
	return fmt.Sprintf("S:%s:%s:%d.%s:%d:%d:%d.%s:%d",
		c.ReportedState,
		c.GoalState,
		len(c.FormationID),
		c.FormationID,
		c.GroupID,
		c.NodeID,
		len(c.NodeName),
		c.NodeName,
		c.NodePort)
}

// NewStateChange builds the event for assigning a node a new goal state.
func NewStateChange(node *fsm.Node, goalState fsm.ReplicationState, description string) *StateChange {
	return &StateChange{
		FormationID:       node.FormationID,
		GroupID:           node.GroupID,
		NodeID:            node.NodeID,
		NodeName:          node.Name,
		NodePort:          node.Port,
		ReportedState:     node.ReportedState,
		GoalState:         goalState,
		SyncState:         node.SyncState,
		ReportedLSN:       node.ReportedLSN,
		CandidatePriority: node.CandidatePriority,
		ReplicationQuorum: node.ReplicationQuorum,
		Description:       description,
	}
}
