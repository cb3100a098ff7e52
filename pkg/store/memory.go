package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
)

// MemoryStore keeps all rows in process memory. It backs the unit tests and
// the single-process demo mode, and honors the same atomicity contract as the
// postgres store by serializing every mutation behind one lock.
type MemoryStore struct {
	mu         sync.RWMutex
	formations map[string]*fsm.Formation
	nodes      map[int64]*fsm.Node
	eventLog   []*events.StateChange
	nextNodeID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		formations: make(map[string]*fsm.Formation),
		nodes:      make(map[int64]*fsm.Node),
		nextNodeID: 1,
	}
}

// CreateFormation adds a formation row
func (s *MemoryStore) CreateFormation(ctx context.Context, formation *fsm.Formation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.formations[formation.ID]; ok {
		return fmt.Errorf("%w: %q", ErrFormationExists, formation.ID)
	}
	s.formations[formation.ID] = formation.Clone()
	return nil
}

// GetFormation returns a copy of the formation row
func (s *MemoryStore) GetFormation(ctx context.Context, formationID string) (*fsm.Formation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	formation, ok := s.formations[formationID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormationNotFound, formationID)
	}
	return formation.Clone(), nil
}

// SetFormationKind switches a formation between plain and sharded
func (s *MemoryStore) SetFormationKind(ctx context.Context, formationID string, kind fsm.FormationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	formation, ok := s.formations[formationID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFormationNotFound, formationID)
	}
	formation.Kind = kind
	return nil
}

// AddNode creates the node row and assigns its node id
func (s *MemoryStore) AddNode(ctx context.Context, node *fsm.Node) (*fsm.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.nodes {
		if existing.FormationID == node.FormationID &&
			existing.Name == node.Name && existing.Port == node.Port {
			return nil, fmt.Errorf("%w: %s", ErrNodeExists, node.Addr())
		}
	}

	row := node.Clone()
	row.NodeID = s.nextNodeID
	s.nextNodeID++
	s.nodes[row.NodeID] = row

	return row.Clone(), nil
}

// GetNode returns a copy of the node row
func (s *MemoryStore) GetNode(ctx context.Context, nodeID int64) (*fsm.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	return node.Clone(), nil
}

// GetNodeByAddr looks a node up by formation, name and port
func (s *MemoryStore) GetNodeByAddr(ctx context.Context, formationID, name string, port int) (*fsm.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, node := range s.nodes {
		if node.FormationID == formationID && node.Name == name && node.Port == port {
			return node.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s:%d in formation %q", ErrNodeNotFound, name, port, formationID)
}

// GroupNodes returns a by-value snapshot of one group, in node id order
func (s *MemoryStore) GroupNodes(ctx context.Context, formationID string, groupID int) ([]*fsm.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group := []*fsm.Node{}
	for _, node := range s.nodes {
		if node.FormationID == formationID && node.GroupID == groupID {
			group = append(group, node.Clone())
		}
	}
	sortNodes(group)
	return group, nil
}

// FormationNodes returns every node of a formation, in node id order
func (s *MemoryStore) FormationNodes(ctx context.Context, formationID string) ([]*fsm.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := []*fsm.Node{}
	for _, node := range s.nodes {
		if node.FormationID == formationID {
			nodes = append(nodes, node.Clone())
		}
	}
	sortNodes(nodes)
	return nodes, nil
}

// AllNodes returns every registered node, in node id order
func (s *MemoryStore) AllNodes(ctx context.Context) ([]*fsm.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := maps.Keys(s.nodes)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make([]*fsm.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, s.nodes[id].Clone())
	}
	return nodes, nil
}

// ReportNodeState updates the reported fields of a node row. A report whose
// LSN is behind the stored value keeps the stored LSN.
func (s *MemoryStore) ReportNodeState(ctx context.Context, report *NodeReport) (*fsm.Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[report.NodeID]
	if !ok {
		return nil, false, fmt.Errorf("%w: id %d", ErrNodeNotFound, report.NodeID)
	}

	staleLSN := report.ReportedLSN < node.ReportedLSN

	node.ReportedState = report.ReportedState
	node.PgIsRunning = report.PgIsRunning
	node.SyncState = report.SyncState
	node.ReportTime = report.ReportTime
	if !staleLSN {
		node.ReportedLSN = report.ReportedLSN
		node.WalReportTime = report.ReportTime
	}

	return node.Clone(), staleLSN, nil
}

// ReportNodeHealth records the outcome of an external health probe
func (s *MemoryStore) ReportNodeHealth(ctx context.Context, nodeID int64, health fsm.NodeHealth, checkTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	node.Health = health
	node.HealthCheckTime = checkTime
	return nil
}

// SetNodeReplicationSettings updates candidate priority and quorum flag
func (s *MemoryStore) SetNodeReplicationSettings(ctx context.Context, nodeID int64, candidatePriority int, replicationQuorum bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	node.CandidatePriority = candidatePriority
	node.ReplicationQuorum = replicationQuorum
	return nil
}

// SetNodeGoalState assigns a goal state outside an engine decision
func (s *MemoryStore) SetNodeGoalState(ctx context.Context, nodeID int64, goalState fsm.ReplicationState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setGoalStateLocked(nodeID, goalState, at)
}

func (s *MemoryStore) setGoalStateLocked(nodeID int64, goalState fsm.ReplicationState, at time.Time) error {
	node, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	node.GoalState = goalState
	node.StateChangeTime = at
	return nil
}

// RemoveNode deletes the node row
func (s *MemoryStore) RemoveNode(ctx context.Context, nodeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	delete(s.nodes, nodeID)
	return nil
}

// ApplyAssignments commits one engine invocation under a single lock hold, so
// either every goal state write and event lands or none does.
func (s *MemoryStore) ApplyAssignments(ctx context.Context, changes []*events.StateChange, at time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// verify all targets exist before mutating anything
	for _, change := range changes {
		if _, ok := s.nodes[change.NodeID]; !ok {
			return nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, change.NodeID)
		}
	}

	ids := make([]int64, 0, len(changes))
	for _, change := range changes {
		if err := s.setGoalStateLocked(change.NodeID, change.GoalState, at); err != nil {
			return nil, err
		}
		ids = append(ids, s.insertEventLocked(change, at))
	}
	return ids, nil
}

// InsertEvent persists one event row
func (s *MemoryStore) InsertEvent(ctx context.Context, change *events.StateChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertEventLocked(change, change.EventTime), nil
}

func (s *MemoryStore) insertEventLocked(change *events.StateChange, at time.Time) int64 {
	row := *change
	row.EventID = int64(len(s.eventLog) + 1)
	if row.EventTime.IsZero() {
		row.EventTime = at
	}
	s.eventLog = append(s.eventLog, &row)

	change.EventID = row.EventID
	change.EventTime = row.EventTime
	return row.EventID
}

// RecentEvents returns the latest events of a formation, newest first
func (s *MemoryStore) RecentEvents(ctx context.Context, formationID string, limit int) ([]*events.StateChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := []*events.StateChange{}
	for i := len(s.eventLog) - 1; i >= 0 && len(recent) < limit; i-- {
		if s.eventLog[i].FormationID == formationID {
			row := *s.eventLog[i]
			recent = append(recent, &row)
		}
	}
	return recent, nil
}

// Ping checks connectivity, always healthy for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases the store
func (s *MemoryStore) Close() error {
	return nil
}

func sortNodes(nodes []*fsm.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].NodeID < nodes[j].NodeID
	})
}
