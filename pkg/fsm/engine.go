package fsm

import (
	"fmt"
	"sort"
	"time"
)

// Assignment is one goal-state decision produced by the engine. The caller
// persists the new goal state and emits one event per assignment, the engine
// itself never touches storage.
type Assignment struct {
	Node        *Node
	GoalState   ReplicationState
	Description string
}

// Engine is the pure decision core of the monitor. Given a consistent group
// snapshot and the node that just reported, it decides which nodes move to
// which goal states. It holds no mutable state beyond the injected clock and
// the process start time consulted by the startup-grace predicate, and is
// safe to invoke from any worker.
type Engine struct {
	clock     Clock
	startTime time.Time
}

// NewEngine creates an engine reading the given clock. The start time is
// captured once, after a monitor restart the startup grace period applies
// anew.
func NewEngine(clock Clock) *Engine {
	return &Engine{
		clock:     clock,
		startTime: clock.Now(),
	}
}

// StartTime returns the process start time the engine was created with.
func (e *Engine) StartTime() time.Time {
	return e.startTime
}

// ProceedGroupState proceeds the state machines of the group the reporting
// node is part of. The snapshot must contain every node of the group,
// including the reporter. The first matching rule fires and the engine
// returns, an empty (possibly nil) assignment list is the normal
// no-transition outcome.
func (e *Engine) ProceedGroupState(formation *Formation, group []*Node, reporter *Node) ([]Assignment, error) {
	nodes := sortedByNodeID(group)

	found := false
	for _, node := range nodes {
		if node.NodeID == reporter.NodeID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: node %d in formation %q group %d",
			ErrNodeNotInGroup, reporter.NodeID, formation.ID, reporter.GroupID)
	}

	// when there's no other node anymore, not even one
	if len(nodes) == 1 && !reporter.IsCurrentState(StateSingle) {
		return []Assignment{{
			Node:      reporter,
			GoalState: StateSingle,
			Description: fmt.Sprintf(
				"Setting goal state of %s to single as there is no other node.",
				reporter.Addr()),
		}}, nil
	}

	// The primary walks over every other node to take its decisions, that
	// loop lives in its own function.
	if reporter.IsInPrimaryState() {
		return e.proceedPrimary(formation, nodes, reporter), nil
	}

	primary := primaryNodeInGroup(nodes)
	if primary == nil {
		return nil, fmt.Errorf("%w: formation %q group %d, reporter %s in state %s",
			ErrPrimaryNotFound, formation.ID, reporter.GroupID,
			reporter.Addr(), reporter.GoalState)
	}

	// when the primary is ready for replication:
	//  wait_standby -> catchingup
	if reporter.IsCurrentState(StateWaitStandby) &&
		(primary.IsCurrentState(StateWaitPrimary) ||
			primary.IsCurrentState(StateJoinPrimary)) {
		return []Assignment{{
			Node:      reporter,
			GoalState: StateCatchingUp,
			Description: fmt.Sprintf(
				"Setting goal state of %s to catchingup after %s converged to %s.",
				reporter.Addr(), primary.Addr(), primary.GoalState),
		}}, nil
	}

	// when the standby caught up:
	//    catchingup -> secondary
	//  wait_primary -> primary
	if reporter.IsCurrentState(StateCatchingUp) &&
		(primary.IsCurrentState(StateWaitPrimary) ||
			primary.IsCurrentState(StateJoinPrimary)) &&
		e.IsHealthy(reporter) &&
		WalDifferenceWithin(reporter, primary, formation.EnableSyncLagBytes) {
		description := fmt.Sprintf(
			"Setting goal state of %s to primary and %s to secondary after %s caught up.",
			primary.Addr(), reporter.Addr(), reporter.Addr())
		return []Assignment{
			{Node: reporter, GoalState: StateSecondary, Description: description},
			{Node: primary, GoalState: StatePrimary, Description: description},
		}, nil
	}

	// when the primary fails:
	//  secondary -> prepare_promotion
	//    primary -> draining
	if reporter.IsCurrentState(StateSecondary) &&
		primary.IsInPrimaryState() &&
		e.IsUnhealthy(formation, primary) &&
		e.IsHealthy(reporter) &&
		WalDifferenceWithin(reporter, primary, formation.PromoteLagBytes) &&
		reporter.CandidatePriority > 0 &&
		reporter.ReplicationQuorum {
		description := fmt.Sprintf(
			"Setting goal state of %s to draining and %s to prepare_promotion after %s became unhealthy.",
			primary.Addr(), reporter.Addr(), primary.Addr())
		return []Assignment{
			{Node: reporter, GoalState: StatePreparePromotion, Description: description},
			{Node: primary, GoalState: StateDraining, Description: description},
		}, nil
	}

	// in a sharded formation the routing layer already fenced writes on the
	// old primary, the drain window can be skipped:
	//  prepare_promotion -> wait_primary
	if reporter.IsCurrentState(StatePreparePromotion) &&
		formation.Kind == KindSharded && reporter.GroupID > 0 {
		description := fmt.Sprintf(
			"Setting goal state of %s to wait_primary and %s to demoted after the routing layer fenced writes.",
			reporter.Addr(), primary.Addr())
		return []Assignment{
			{Node: reporter, GoalState: StateWaitPrimary, Description: description},
			{Node: primary, GoalState: StateDemoted, Description: description},
		}, nil
	}

	// when the chosen standby sees no more writes coming:
	//  prepare_promotion -> stop_replication
	if reporter.IsCurrentState(StatePreparePromotion) {
		description := fmt.Sprintf(
			"Setting goal state of %s to demote_timeout and %s to stop_replication after %s converged to prepare_promotion.",
			primary.Addr(), reporter.Addr(), reporter.Addr())
		return []Assignment{
			{Node: reporter, GoalState: StateStopReplication, Description: description},
			{Node: primary, GoalState: StateDemoteTimeout, Description: description},
		}, nil
	}

	// when the drain time expires or the primary reports it's drained:
	//  stop_replication -> wait_primary
	//    demote_timeout -> demoted
	if reporter.IsCurrentState(StateStopReplication) &&
		(primary.IsCurrentState(StateDemoteTimeout) ||
			e.DrainTimeExpired(formation, primary)) {
		description := fmt.Sprintf(
			"Setting goal state of %s to wait_primary and %s to demoted after the demote timeout expired.",
			reporter.Addr(), primary.Addr())
		return []Assignment{
			{Node: reporter, GoalState: StateWaitPrimary, Description: description},
			{Node: primary, GoalState: StateDemoted, Description: description},
		}, nil
	}

	// sharded short-cut from stop_replication, same fencing argument
	if reporter.IsCurrentState(StateStopReplication) &&
		formation.Kind == KindSharded && reporter.GroupID > 0 {
		description := fmt.Sprintf(
			"Setting goal state of %s to wait_primary and %s to demoted after the routing layer fenced writes.",
			reporter.Addr(), primary.Addr())
		return []Assignment{
			{Node: reporter, GoalState: StateWaitPrimary, Description: description},
			{Node: primary, GoalState: StateDemoted, Description: description},
		}, nil
	}

	// when the new primary is ready:
	//  demoted -> catchingup
	if reporter.IsCurrentState(StateDemoted) &&
		primary.IsCurrentState(StateWaitPrimary) {
		return []Assignment{{
			Node:      reporter,
			GoalState: StateCatchingUp,
			Description: fmt.Sprintf(
				"Setting goal state of %s to catchingup after it converged to demotion and %s converged to wait_primary.",
				reporter.Addr(), primary.Addr()),
		}}, nil
	}

	return nil, nil
}

// proceedPrimary is the group state machine when the reporting node is the
// converged primary.
func (e *Engine) proceedPrimary(formation *Formation, nodes []*Node, primary *Node) []Assignment {
	others := make([]*Node, 0, len(nodes)-1)
	for _, node := range nodes {
		if node.NodeID != primary.NodeID {
			others = append(others, node)
		}
	}

	// when a first standby wants to join:
	//  single -> wait_primary
	if primary.IsCurrentState(StateSingle) {
		for _, other := range others {
			if other.IsCurrentState(StateWaitStandby) {
				return []Assignment{{
					Node:      primary,
					GoalState: StateWaitPrimary,
					Description: fmt.Sprintf(
						"Setting goal state of %s to wait_primary after %s joined.",
						primary.Addr(), other.Addr()),
				}}
			}
		}
	}

	// when an additional standby wants to join:
	//  primary -> join_primary
	if primary.IsCurrentState(StatePrimary) {
		for _, other := range others {
			if other.IsCurrentState(StateWaitStandby) {
				return []Assignment{{
					Node:      primary,
					GoalState: StateJoinPrimary,
					Description: fmt.Sprintf(
						"Setting goal state of %s to join_primary after %s joined.",
						primary.Addr(), other.Addr()),
				}}
			}
		}
	}

	// when a secondary goes unhealthy:
	//  secondary -> catchingup
	//    primary -> wait_primary, once no failover candidate remains
	//
	// Synchronous replication must be disabled as soon as no healthy quorum
	// standby is left, otherwise writes stall on the primary.
	if primary.IsCurrentState(StatePrimary) {
		assignments := []Assignment{}
		failoverCandidateCount := len(others)
		demoted := false

		for _, other := range others {
			if other.IsCurrentState(StateSecondary) && e.IsUnhealthy(formation, other) {
				failoverCandidateCount--
				assignments = append(assignments, Assignment{
					Node:      other,
					GoalState: StateCatchingUp,
					Description: fmt.Sprintf(
						"Setting goal state of %s to catchingup after it became unhealthy.",
						other.Addr()),
				})
			} else if !other.ReplicationQuorum || other.CandidatePriority == 0 {
				// also not a candidate
				failoverCandidateCount--
			}

			if failoverCandidateCount == 0 && !demoted {
				demoted = true
				assignments = append(assignments, Assignment{
					Node:      primary,
					GoalState: StateWaitPrimary,
					Description: fmt.Sprintf(
						"Setting goal state of %s to wait_primary now that none of the standbys are healthy anymore.",
						primary.Addr()),
				})
			}
		}

		return assignments
	}

	// when the primary applied a replication-settings change:
	//  apply_settings -> primary
	if primary.IsCurrentState(StateApplySettings) {
		return []Assignment{{
			Node:      primary,
			GoalState: StatePrimary,
			Description: fmt.Sprintf(
				"Setting goal state of %s to primary after it applied replication properties change.",
				primary.Addr()),
		}}
	}

	return nil
}

// isPrimarySideState covers every state the primary side of a failover moves
// through. Draining and demote_timeout stay in so the old primary remains
// locatable while a dead node's reported state lags behind, demoted is out so
// a rejoining ex-primary is never mistaken for the current one.
func isPrimarySideState(state ReplicationState) bool {
	return state.BelongsToPrimary() ||
		state == StateDraining ||
		state == StateDemoteTimeout
}

// primaryNodeInGroup locates the primary node of a sorted group snapshot,
// converged or mid-transition.
func primaryNodeInGroup(nodes []*Node) *Node {
	for _, node := range nodes {
		if isPrimarySideState(node.GoalState) || isPrimarySideState(node.ReportedState) {
			return node
		}
	}
	return nil
}

// sortedByNodeID returns a copy of the snapshot in node-id order, so that the
// engine's iteration order, and with it its output, is deterministic.
func sortedByNodeID(nodes []*Node) []*Node {
	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].NodeID < sorted[j].NodeID
	})
	return sorted
}
