package coordinator

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/store"
)

// NodeActive handles one heartbeat: record the report, run the group state
// machine with this node as the reporter, and return the node with its
// possibly updated goal state. The call is idempotent per (node, reported
// state, reported LSN).
func (c *Coordinator) NodeActive(ctx context.Context, req *ActiveRequest) (*fsm.Node, error) {
	start := c.clock.Now()

	node, err := c.nodeActive(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation("node_active", status, c.clock.Now().Sub(start))

	return node, err
}

func (c *Coordinator) nodeActive(ctx context.Context, req *ActiveRequest) (*fsm.Node, error) {
	node, err := c.store.GetNodeByAddr(ctx, req.FormationID, req.Name, req.Port)
	if err != nil {
		return nil, err
	}
	if req.NodeID != -1 && req.NodeID != node.NodeID {
		return nil, fmt.Errorf("%w: node %s reported id %d, registered as %d",
			ErrNodeIDMismatch, node.Addr(), req.NodeID, node.NodeID)
	}

	formation, err := c.store.GetFormation(ctx, req.FormationID)
	if err != nil {
		return nil, err
	}

	lock := c.groupLock(node.FormationID, node.GroupID)
	lock.Lock()
	defer lock.Unlock()

	// The agent reached a new state. Record that as an event before taking
	// any decision on it.
	if node.ReportedState != req.ReportedState {
		change := events.NewStateChange(node, node.GoalState,
			fmt.Sprintf("Node %s reported new state %s.", node.Addr(), req.ReportedState))
		change.ReportedState = req.ReportedState
		change.ReportedLSN = req.ReportedLSN
		change.SyncState = req.SyncState

		if _, err := c.emitter.NotifyStateChange(ctx, change); err != nil {
			return nil, err
		}
	}

	node, staleLSN, err := c.store.ReportNodeState(ctx, &store.NodeReport{
		NodeID:        node.NodeID,
		ReportedState: req.ReportedState,
		PgIsRunning:   req.PgIsRunning,
		SyncState:     req.SyncState,
		ReportedLSN:   req.ReportedLSN,
		ReportTime:    c.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if staleLSN {
		// A replayed or reordered report. The row kept the stored LSN and no
		// decision is taken on it.
		c.logger.Warn("Rejecting stale LSN report",
			logging.NodeID(node.NodeID),
			logging.NodeName(node.Name),
			logging.LSN(req.ReportedLSN))
		return node, nil
	}

	if err := c.proceedGroupState(ctx, formation, node); err != nil {
		return nil, err
	}

	return c.store.GetNode(ctx, node.NodeID)
}

// proceedGroupState loads the group snapshot, runs the engine, and commits
// the assignments with their events. Must be called with the group lock held.
func (c *Coordinator) proceedGroupState(ctx context.Context, formation *fsm.Formation, reporter *fsm.Node) error {
	group, err := c.store.GroupNodes(ctx, formation.ID, reporter.GroupID)
	if err != nil {
		return err
	}

	// run the engine on the fresh copy of the reporter
	var fresh *fsm.Node
	for _, node := range group {
		if node.NodeID == reporter.NodeID {
			fresh = node
			break
		}
	}
	if fresh == nil {
		return fmt.Errorf("%w: id %d", store.ErrNodeNotFound, reporter.NodeID)
	}

	if primary := primaryInGroup(group); primary != nil &&
		primary.ReportedLSN > 0 && fresh.ReportedLSN > 0 {
		lag := primary.ReportedLSN - fresh.ReportedLSN
		if fresh.ReportedLSN > primary.ReportedLSN {
			lag = fresh.ReportedLSN - primary.ReportedLSN
		}
		c.metrics.SetGroupReplicationLag(formation.ID, fresh.GroupID, float64(lag))
	}

	assignments, err := c.engine.ProceedGroupState(formation, group, fresh)
	if err != nil {
		c.metrics.RecordEngineOutcome("error")
		c.logger.Error("Group state machine failed",
			logging.Formation(formation.ID),
			logging.Group(fresh.GroupID),
			logging.NodeName(fresh.Name),
			logging.Error(err))
		return err
	}
	if len(assignments) == 0 {
		c.metrics.RecordEngineOutcome("unchanged")
		return nil
	}
	c.metrics.RecordEngineOutcome("assigned")

	changes := make([]*events.StateChange, 0, len(assignments))
	for _, assignment := range assignments {
		changes = append(changes,
			events.NewStateChange(assignment.Node, assignment.GoalState, assignment.Description))
	}

	// assignments and their events commit together, publication follows
	if _, err := c.store.ApplyAssignments(ctx, changes, c.clock.Now()); err != nil {
		return fmt.Errorf("failed to apply assignments: %w", err)
	}

	for i, change := range changes {
		c.emitter.Publish(change)
		c.metrics.RecordTransition(
			assignments[i].Node.GoalState.String(), change.GoalState.String())
		if change.GoalState == fsm.StatePreparePromotion {
			c.metrics.RecordFailoverStart(formation.ID)
		}
	}

	return nil
}

// RemoveNode deletes the node row. Remaining nodes of the group converge on
// their next heartbeat.
func (c *Coordinator) RemoveNode(ctx context.Context, nodeID int64) error {
	start := c.clock.Now()

	err := c.removeNode(ctx, nodeID)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation("remove", status, c.clock.Now().Sub(start))

	return err
}

func (c *Coordinator) removeNode(ctx context.Context, nodeID int64) error {
	node, err := c.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}

	lock := c.groupLock(node.FormationID, node.GroupID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.RemoveNode(ctx, nodeID); err != nil {
		return err
	}

	c.emitter.LogAndNotifyMessage(
		fmt.Sprintf("Removing node %s from formation %q.", node.Addr(), node.FormationID),
		logging.Formation(node.FormationID),
		logging.Group(node.GroupID),
		logging.NodeID(node.NodeID))
	c.metrics.NodesRegistered.WithLabelValues(node.FormationID).Dec()

	return nil
}

// SetReplicationSettings updates a node's candidate priority and quorum
// participation. When the group has standbys the primary is sent through
// apply_settings so the new properties reach its synchronous-replication
// configuration.
func (c *Coordinator) SetReplicationSettings(ctx context.Context, nodeID int64, candidatePriority int, replicationQuorum bool) error {
	start := c.clock.Now()

	err := c.setReplicationSettings(ctx, nodeID, candidatePriority, replicationQuorum)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation("set_settings", status, c.clock.Now().Sub(start))

	return err
}

func (c *Coordinator) setReplicationSettings(ctx context.Context, nodeID int64, candidatePriority int, replicationQuorum bool) error {
	if candidatePriority < 0 || candidatePriority > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, candidatePriority)
	}

	node, err := c.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}

	lock := c.groupLock(node.FormationID, node.GroupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := c.store.GroupNodes(ctx, node.FormationID, node.GroupID)
	if err != nil {
		return err
	}

	if len(group) == 1 {
		if err := c.store.SetNodeReplicationSettings(ctx, nodeID, candidatePriority, replicationQuorum); err != nil {
			return err
		}
		c.emitter.LogAndNotifyMessage(
			fmt.Sprintf("Updating replication settings of node %s to priority %d, quorum %t.",
				node.Addr(), candidatePriority, replicationQuorum),
			logging.NodeID(node.NodeID))
		return nil
	}

	primary := primaryInGroup(group)
	if primary == nil {
		return fmt.Errorf("%w: formation %q group %d",
			fsm.ErrPrimaryNotFound, node.FormationID, node.GroupID)
	}
	if !primary.IsCurrentState(fsm.StatePrimary) {
		// the primary can only change synchronous_standby_names once settled
		return fmt.Errorf("%w: primary %s is in state %s",
			ErrPrimaryNotReady, primary.Addr(), primary.ReportedState)
	}

	if err := c.store.SetNodeReplicationSettings(ctx, nodeID, candidatePriority, replicationQuorum); err != nil {
		return err
	}

	change := events.NewStateChange(primary, fsm.StateApplySettings,
		fmt.Sprintf("Setting goal state of %s to apply_settings after updating replication settings for node %s.",
			primary.Addr(), node.Addr()))

	if _, err := c.store.ApplyAssignments(ctx, []*events.StateChange{change}, c.clock.Now()); err != nil {
		return fmt.Errorf("failed to assign apply_settings: %w", err)
	}
	c.emitter.Publish(change)
	c.metrics.RecordTransition(primary.GoalState.String(), fsm.StateApplySettings.String())

	return nil
}

// GetPrimary returns the writable node of a group.
func (c *Coordinator) GetPrimary(ctx context.Context, formationID string, groupID int) (*fsm.Node, error) {
	group, err := c.store.GroupNodes(ctx, formationID, groupID)
	if err != nil {
		return nil, err
	}

	primary := primaryInGroup(group)
	if primary == nil {
		return nil, fmt.Errorf("%w: formation %q group %d",
			fsm.ErrPrimaryNotFound, formationID, groupID)
	}
	return primary, nil
}

// GetNodes returns every node of a formation.
func (c *Coordinator) GetNodes(ctx context.Context, formationID string) ([]*fsm.Node, error) {
	return c.store.FormationNodes(ctx, formationID)
}

// primaryInGroup locates the primary-like node of a group snapshot
func primaryInGroup(group []*fsm.Node) *fsm.Node {
	for _, node := range group {
		if node.IsPrimaryLike() {
			return node
		}
	}
	return nil
}
