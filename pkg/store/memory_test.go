package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
)

func newStoreWithFormation(t *testing.T) (*MemoryStore, *fsm.Formation) {
	t.Helper()
	s := NewMemoryStore()
	formation := fsm.DefaultFormation("default")
	if err := s.CreateFormation(context.Background(), formation); err != nil {
		t.Fatalf("CreateFormation: %v", err)
	}
	return s, formation
}

func addTestNode(t *testing.T, s *MemoryStore, name string, state fsm.ReplicationState) *fsm.Node {
	t.Helper()
	node, err := s.AddNode(context.Background(), &fsm.Node{
		FormationID:       "default",
		GroupID:           0,
		Name:              name,
		Port:              5432,
		GoalState:         state,
		ReportedState:     state,
		CandidatePriority: 100,
		ReplicationQuorum: true,
	})
	if err != nil {
		t.Fatalf("AddNode(%s): %v", name, err)
	}
	return node
}

func TestCreateFormationRejectsDuplicates(t *testing.T) {
	s, formation := newStoreWithFormation(t)

	err := s.CreateFormation(context.Background(), formation)
	if !errors.Is(err, ErrFormationExists) {
		t.Fatalf("expected ErrFormationExists, got %v", err)
	}
}

func TestGetFormationReturnsCopy(t *testing.T) {
	s, _ := newStoreWithFormation(t)

	first, err := s.GetFormation(context.Background(), "default")
	if err != nil {
		t.Fatalf("GetFormation: %v", err)
	}
	first.Kind = fsm.KindSharded

	second, err := s.GetFormation(context.Background(), "default")
	if err != nil {
		t.Fatalf("GetFormation: %v", err)
	}
	if second.Kind != fsm.KindPlain {
		t.Error("mutation of a returned formation leaked into the store")
	}
}

func TestAddNodeAssignsSequentialIDs(t *testing.T) {
	s, _ := newStoreWithFormation(t)

	a := addTestNode(t, s, "a", fsm.StateSingle)
	b := addTestNode(t, s, "b", fsm.StateWaitStandby)

	if a.NodeID != 1 || b.NodeID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", a.NodeID, b.NodeID)
	}
}

func TestAddNodeRejectsDuplicateAddr(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	addTestNode(t, s, "a", fsm.StateSingle)

	_, err := s.AddNode(context.Background(), &fsm.Node{
		FormationID: "default", Name: "a", Port: 5432,
	})
	if !errors.Is(err, ErrNodeExists) {
		t.Fatalf("expected ErrNodeExists, got %v", err)
	}
}

func TestReportNodeStateUpdatesReportedFields(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	node := addTestNode(t, s, "a", fsm.StateCatchingUp)

	now := time.Now()
	updated, stale, err := s.ReportNodeState(context.Background(), &NodeReport{
		NodeID:        node.NodeID,
		ReportedState: fsm.StateSecondary,
		PgIsRunning:   true,
		SyncState:     fsm.SyncStateQuorum,
		ReportedLSN:   2048,
		ReportTime:    now,
	})
	if err != nil {
		t.Fatalf("ReportNodeState: %v", err)
	}
	if stale {
		t.Fatal("fresh report flagged stale")
	}
	if updated.ReportedState != fsm.StateSecondary ||
		updated.ReportedLSN != 2048 ||
		!updated.PgIsRunning ||
		updated.SyncState != fsm.SyncStateQuorum {
		t.Errorf("reported fields not applied: %+v", updated)
	}
	if updated.GoalState != fsm.StateCatchingUp {
		t.Error("report ingress must not touch the goal state")
	}
}

func TestReportNodeStateRejectsStaleLSN(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	node := addTestNode(t, s, "a", fsm.StateSecondary)

	report := func(lsn uint64) (*fsm.Node, bool) {
		t.Helper()
		updated, stale, err := s.ReportNodeState(context.Background(), &NodeReport{
			NodeID:        node.NodeID,
			ReportedState: fsm.StateSecondary,
			PgIsRunning:   true,
			ReportedLSN:   lsn,
			ReportTime:    time.Now(),
		})
		if err != nil {
			t.Fatalf("ReportNodeState: %v", err)
		}
		return updated, stale
	}

	report(5000)
	updated, stale := report(4000)

	if !stale {
		t.Fatal("expected stale flag for a lower LSN")
	}
	if updated.ReportedLSN != 5000 {
		t.Errorf("stored LSN = %d, want 5000 kept", updated.ReportedLSN)
	}
	if !updated.PgIsRunning {
		t.Error("non-LSN fields must still update on a stale report")
	}

	// equal LSN is not stale, heartbeats repeat positions
	if _, stale := report(5000); stale {
		t.Error("equal LSN flagged stale")
	}
}

func TestApplyAssignmentsIsAtomic(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	a := addTestNode(t, s, "a", fsm.StatePrimary)
	b := addTestNode(t, s, "b", fsm.StateSecondary)

	now := time.Now()
	changes := []*events.StateChange{
		events.NewStateChange(b, fsm.StatePreparePromotion, "promote b"),
		events.NewStateChange(a, fsm.StateDraining, "drain a"),
	}

	ids, err := s.ApplyAssignments(context.Background(), changes, now)
	if err != nil {
		t.Fatalf("ApplyAssignments: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}

	stored, err := s.GetNode(context.Background(), b.NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.GoalState != fsm.StatePreparePromotion {
		t.Errorf("b goal = %s", stored.GoalState)
	}
	if !stored.StateChangeTime.Equal(now) {
		t.Errorf("b state change time = %v, want %v", stored.StateChangeTime, now)
	}

	recent, err := s.RecentEvents(context.Background(), "default", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d events, want 2", len(recent))
	}
	// newest first
	if recent[0].Description != "drain a" {
		t.Errorf("recent[0] = %q", recent[0].Description)
	}
}

func TestApplyAssignmentsRollsBackOnUnknownNode(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	a := addTestNode(t, s, "a", fsm.StatePrimary)

	missing := &events.StateChange{NodeID: 99, GoalState: fsm.StateDraining}
	changes := []*events.StateChange{
		events.NewStateChange(a, fsm.StateDraining, "drain a"),
		missing,
	}

	if _, err := s.ApplyAssignments(context.Background(), changes, time.Now()); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}

	stored, err := s.GetNode(context.Background(), a.NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.GoalState != fsm.StatePrimary {
		t.Errorf("partial apply leaked: a goal = %s", stored.GoalState)
	}

	recent, err := s.RecentEvents(context.Background(), "default", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("partial apply left %d events behind", len(recent))
	}
}

func TestGroupNodesReturnsByValueSnapshot(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	addTestNode(t, s, "a", fsm.StatePrimary)

	group, err := s.GroupNodes(context.Background(), "default", 0)
	if err != nil {
		t.Fatalf("GroupNodes: %v", err)
	}
	group[0].GoalState = fsm.StateDemoted

	stored, err := s.GetNode(context.Background(), group[0].NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.GoalState != fsm.StatePrimary {
		t.Error("mutation of a snapshot leaked into the store")
	}
}

func TestRemoveNode(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	node := addTestNode(t, s, "a", fsm.StateSingle)

	if err := s.RemoveNode(context.Background(), node.NodeID); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if _, err := s.GetNode(context.Background(), node.NodeID); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if err := s.RemoveNode(context.Background(), node.NodeID); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("double remove: expected ErrNodeNotFound, got %v", err)
	}
}

func TestReportNodeHealth(t *testing.T) {
	s, _ := newStoreWithFormation(t)
	node := addTestNode(t, s, "a", fsm.StateSingle)

	checkTime := time.Now()
	if err := s.ReportNodeHealth(context.Background(), node.NodeID, fsm.HealthBad, checkTime); err != nil {
		t.Fatalf("ReportNodeHealth: %v", err)
	}

	stored, err := s.GetNode(context.Background(), node.NodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if stored.Health != fsm.HealthBad {
		t.Errorf("health = %s, want bad", stored.Health)
	}
	if !stored.HealthCheckTime.Equal(checkTime) {
		t.Errorf("health check time = %v", stored.HealthCheckTime)
	}
}
