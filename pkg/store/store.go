package store

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
)

// NodeReport carries the fields a node agent sends on every heartbeat.
type NodeReport struct {
	NodeID        int64
	ReportedState fsm.ReplicationState
	PgIsRunning   bool
	SyncState     fsm.SyncState
	ReportedLSN   uint64
	ReportTime    time.Time
}

// Store is the persistence layer behind the coordinator: formation rows, node
// rows and event rows. Implementations must apply each mutation atomically
// with respect to other calls for the same group.
type Store interface {
	events.Sink

	// CreateFormation adds a formation row
	CreateFormation(ctx context.Context, formation *fsm.Formation) error
	// GetFormation returns the formation or ErrFormationNotFound
	GetFormation(ctx context.Context, formationID string) (*fsm.Formation, error)
	// SetFormationKind switches a formation between plain and sharded
	SetFormationKind(ctx context.Context, formationID string, kind fsm.FormationKind) error

	// AddNode creates the node row and returns it with its assigned node id
	AddNode(ctx context.Context, node *fsm.Node) (*fsm.Node, error)
	// GetNode returns the node or ErrNodeNotFound
	GetNode(ctx context.Context, nodeID int64) (*fsm.Node, error)
	// GetNodeByAddr looks a node up by formation, name and port
	GetNodeByAddr(ctx context.Context, formationID, name string, port int) (*fsm.Node, error)
	// GroupNodes returns every node of one group
	GroupNodes(ctx context.Context, formationID string, groupID int) ([]*fsm.Node, error)
	// FormationNodes returns every node of a formation
	FormationNodes(ctx context.Context, formationID string) ([]*fsm.Node, error)
	// AllNodes returns every registered node
	AllNodes(ctx context.Context) ([]*fsm.Node, error)

	// ReportNodeState updates the reported fields of a node row. A report
	// whose LSN is behind the stored value keeps the stored LSN, the
	// returned flag says so. Other fields update regardless.
	ReportNodeState(ctx context.Context, report *NodeReport) (node *fsm.Node, staleLSN bool, err error)
	// ReportNodeHealth records the outcome of an external health probe
	ReportNodeHealth(ctx context.Context, nodeID int64, health fsm.NodeHealth, checkTime time.Time) error
	// SetNodeReplicationSettings updates candidate priority and quorum flag
	SetNodeReplicationSettings(ctx context.Context, nodeID int64, candidatePriority int, replicationQuorum bool) error
	// SetNodeGoalState assigns a goal state outside an engine decision
	SetNodeGoalState(ctx context.Context, nodeID int64, goalState fsm.ReplicationState, at time.Time) error
	// RemoveNode deletes the node row
	RemoveNode(ctx context.Context, nodeID int64) error

	// ApplyAssignments commits one engine invocation: every goal state write
	// and its event row succeed or fail together. Returns the event ids in
	// assignment order.
	ApplyAssignments(ctx context.Context, changes []*events.StateChange, at time.Time) ([]int64, error)

	// RecentEvents returns the latest events of a formation, newest first
	RecentEvents(ctx context.Context, formationID string, limit int) ([]*events.StateChange, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
	// Close releases the store
	Close() error
}
