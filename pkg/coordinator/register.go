package coordinator

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/logging"
)

// RegisterNode creates the node row and decides its initial goal state: the
// first node of a group starts as single, any later node as wait_standby. To
// keep the decision making per state unambiguous only one standby may be
// joining a group at a time.
func (c *Coordinator) RegisterNode(ctx context.Context, req *RegisterRequest) (*fsm.Node, error) {
	start := c.clock.Now()

	node, err := c.registerNode(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation("register", status, c.clock.Now().Sub(start))

	return node, err
}

func (c *Coordinator) registerNode(ctx context.Context, req *RegisterRequest) (*fsm.Node, error) {
	if req.CandidatePriority < 0 || req.CandidatePriority > 100 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPriority, req.CandidatePriority)
	}

	formation, err := c.store.GetFormation(ctx, req.FormationID)
	if err != nil {
		return nil, err
	}

	// The default formation starts out plain. The first node registered
	// decides the actual kind, after that the kinds have to agree.
	if formation.Kind != req.Kind {
		existing, err := c.store.FormationNodes(ctx, req.FormationID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("%w: node is %s, formation %q is %s",
				ErrKindMismatch, req.Kind, formation.ID, formation.Kind)
		}
		if err := c.store.SetFormationKind(ctx, req.FormationID, req.Kind); err != nil {
			return nil, err
		}
		formation.Kind = req.Kind
	}

	groupID, err := c.resolveGroup(ctx, formation, req)
	if err != nil {
		return nil, err
	}

	lock := c.groupLock(req.FormationID, groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := c.store.GroupNodes(ctx, req.FormationID, groupID)
	if err != nil {
		return nil, err
	}

	initialState := fsm.StateSingle
	if len(group) > 0 {
		if !formation.EnableSecondary {
			return nil, fmt.Errorf("%w: formation %q", ErrSecondaryDisabled, formation.ID)
		}

		// A group only ever accepts a primary first, every later node is a
		// standby.
		initialState = fsm.StateWaitStandby

		primary := writableNodeInGroup(group)
		if primary == nil {
			return nil, fmt.Errorf("%w: formation %q group %d",
				ErrPrimaryNotReady, formation.ID, groupID)
		}
		if primary.GoalState == fsm.StateWaitPrimary ||
			primary.GoalState == fsm.StateJoinPrimary {
			return nil, fmt.Errorf("%w: primary %s is in state %s",
				ErrRegistrationInProgress, primary.Addr(), primary.GoalState)
		}
	}

	now := c.clock.Now()
	node, err := c.store.AddNode(ctx, &fsm.Node{
		FormationID:       req.FormationID,
		GroupID:           groupID,
		Name:              req.Name,
		Port:              req.Port,
		GoalState:         initialState,
		ReportedState:     initialState,
		Health:            fsm.HealthUnknown,
		ReportTime:        now,
		StateChangeTime:   now,
		CandidatePriority: req.CandidatePriority,
		ReplicationQuorum: req.ReplicationQuorum,
	})
	if err != nil {
		return nil, err
	}

	c.emitter.LogAndNotifyMessage(
		fmt.Sprintf("Registering node %s to formation %q with initial state %s.",
			node.Addr(), formation.ID, initialState),
		logging.Formation(formation.ID),
		logging.Group(groupID),
		logging.NodeID(node.NodeID))
	c.metrics.NodesRegistered.WithLabelValues(formation.ID).Inc()

	if err := c.proceedGroupState(ctx, formation, node); err != nil {
		return nil, err
	}

	return c.store.GetNode(ctx, node.NodeID)
}

// resolveGroup validates or assigns the target group id. A plain formation
// has exactly one group, group 0. A sharded formation takes the requested
// group or the next free one.
func (c *Coordinator) resolveGroup(ctx context.Context, formation *fsm.Formation, req *RegisterRequest) (int, error) {
	if formation.Kind == fsm.KindPlain {
		if req.GroupID > 0 {
			return 0, fmt.Errorf("%w: plain formations have only group 0, got %d",
				ErrInvalidGroup, req.GroupID)
		}
		return 0, nil
	}

	if req.GroupID >= 0 {
		return req.GroupID, nil
	}

	nodes, err := c.store.FormationNodes(ctx, formation.ID)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, node := range nodes {
		if node.GroupID >= next {
			next = node.GroupID + 1
		}
	}
	return next, nil
}

// writableNodeInGroup finds the node whose goal state takes writes
func writableNodeInGroup(group []*fsm.Node) *fsm.Node {
	for _, node := range group {
		if node.GoalState.BelongsToPrimary() {
			return node
		}
	}
	return nil
}
