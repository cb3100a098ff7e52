package fsm

import (
	"encoding/json"
	"fmt"
)

// ReplicationState is the position of a node in the failover lifecycle. Both
// the state a node last reported and the goal state assigned by the monitor
// are drawn from this closed set.
type ReplicationState int

const (
	// StateUnknown is the zero value and never a valid assignment
	StateUnknown ReplicationState = iota
	// StateSingle is the sole node of its group, taking writes without replication
	StateSingle
	// StateWaitPrimary is a writable primary without a healthy synchronous standby
	StateWaitPrimary
	// StatePrimary is a writable primary with synchronous replication enabled
	StatePrimary
	// StateJoinPrimary is a primary preparing a replication slot for a joining standby
	StateJoinPrimary
	// StateApplySettings is a primary applying a replication-properties change
	StateApplySettings
	// StateWaitStandby is a new node waiting for the primary to admit it
	StateWaitStandby
	// StateCatchingUp is a standby streaming but still behind the lag threshold
	StateCatchingUp
	// StateSecondary is a caught-up standby, eligible for promotion
	StateSecondary
	// StatePreparePromotion is the chosen standby finishing replay before promotion
	StatePreparePromotion
	// StateStopReplication is the chosen standby about to accept writes
	StateStopReplication
	// StateDemoteTimeout is a former primary given a bounded window to self-fence
	StateDemoteTimeout
	// StateDraining is a former primary shutting down writes
	StateDraining
	// StateDemoted is a former primary fully down, eligible to rejoin as standby
	StateDemoted
)

var replicationStateNames = map[ReplicationState]string{
	StateUnknown:          "unknown",
	StateSingle:           "single",
	StateWaitPrimary:      "wait_primary",
	StatePrimary:          "primary",
	StateJoinPrimary:      "join_primary",
	StateApplySettings:    "apply_settings",
	StateWaitStandby:      "wait_standby",
	StateCatchingUp:       "catchingup",
	StateSecondary:        "secondary",
	StatePreparePromotion: "prepare_promotion",
	StateStopReplication:  "stop_replication",
	StateDemoteTimeout:    "demote_timeout",
	StateDraining:         "draining",
	StateDemoted:          "demoted",
}

// String returns the wire name of a replication state. Unknown values are a
// programming error, the enumeration is closed.
func (s ReplicationState) String() string {
	name, ok := replicationStateNames[s]
	if !ok {
		panic(fmt.Sprintf("unknown replication state %d", int(s)))
	}
	return name
}

// ParseReplicationState converts a wire name back to a ReplicationState.
func ParseReplicationState(name string) (ReplicationState, error) {
	for state, stateName := range replicationStateNames {
		if stateName == name {
			return state, nil
		}
	}
	return StateUnknown, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// MarshalJSON renders the state by its wire name
func (s ReplicationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a state from its wire name
func (s *ReplicationState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	state, err := ParseReplicationState(name)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// BelongsToPrimary returns whether the state is one a writable primary can
// hold. At most one node per group may have its goal state in this set.
func (s ReplicationState) BelongsToPrimary() bool {
	switch s {
	case StateSingle, StateWaitPrimary, StatePrimary, StateJoinPrimary, StateApplySettings:
		return true
	default:
		return false
	}
}

// BelongsToStandby returns whether the state is one a replica can hold.
func (s ReplicationState) BelongsToStandby() bool {
	switch s {
	case StateWaitStandby, StateCatchingUp, StateSecondary,
		StatePreparePromotion, StateStopReplication:
		return true
	default:
		return false
	}
}

// IsTerminal returns whether the state is a resting point of the lifecycle,
// as opposed to a transitional step the agent is expected to move through.
func (s ReplicationState) IsTerminal() bool {
	switch s {
	case StateSingle, StatePrimary, StateSecondary, StateDemoted:
		return true
	default:
		return false
	}
}
