package fsm

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeHealth is the verdict of the most recent external health probe.
type NodeHealth int

const (
	// HealthUnknown means the node has not been probed yet
	HealthUnknown NodeHealth = iota
	// HealthGood means the last probe succeeded
	HealthGood
	// HealthBad means the last probe failed
	HealthBad
)

// String returns the string representation of a NodeHealth
func (h NodeHealth) String() string {
	switch h {
	case HealthGood:
		return "good"
	case HealthBad:
		return "bad"
	default:
		return "unknown"
	}
}

// ParseNodeHealth converts a stored health tag back to a NodeHealth.
func ParseNodeHealth(name string) NodeHealth {
	switch name {
	case "good":
		return HealthGood
	case "bad":
		return HealthBad
	default:
		return HealthUnknown
	}
}

// SyncState is the synchronous-replication role a standby reports for itself,
// mirroring pg_stat_replication.sync_state.
type SyncState int

const (
	SyncStateUnknown SyncState = iota
	SyncStateSync
	SyncStateAsync
	SyncStateQuorum
	SyncStatePotential
)

var syncStateNames = map[SyncState]string{
	SyncStateUnknown:   "",
	SyncStateSync:      "sync",
	SyncStateAsync:     "async",
	SyncStateQuorum:    "quorum",
	SyncStatePotential: "potential",
}

// String returns the string representation of a SyncState
func (s SyncState) String() string {
	return syncStateNames[s]
}

// MarshalJSON renders the sync state by its pg_stat_replication name
func (s SyncState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a sync state from its pg_stat_replication name
func (s *SyncState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*s = ParseSyncState(name)
	return nil
}

// ParseSyncState converts a pg_stat_replication sync_state string. Unknown
// input maps to SyncStateUnknown rather than an error, standbys report the
// empty string before streaming starts.
func ParseSyncState(name string) SyncState {
	for state, stateName := range syncStateNames {
		if stateName == name && state != SyncStateUnknown {
			return state
		}
	}
	return SyncStateUnknown
}

// Node is the monitor's record of one database node. Reported fields are
// written by the report ingress, GoalState and StateChangeTime only by the
// transition engine.
type Node struct {
	NodeID      int64
	FormationID string
	GroupID     int
	Name        string
	Port        int

	GoalState     ReplicationState
	ReportedState ReplicationState

	PgIsRunning bool
	SyncState   SyncState
	ReportedLSN uint64

	Health          NodeHealth
	ReportTime      time.Time
	WalReportTime   time.Time
	HealthCheckTime time.Time
	StateChangeTime time.Time

	CandidatePriority int
	ReplicationQuorum bool
}

// Addr returns the node's host:port address.
func (n *Node) Addr() string {
	return fmt.Sprintf("%s:%d", n.Name, n.Port)
}

// IsCurrentState returns whether the node has converged to the given state:
// the assigned goal has been reached and reported back. Rules fire only on
// converged states so the engine never races an in-flight assignment.
func (n *Node) IsCurrentState(state ReplicationState) bool {
	return n.ReportedState == state && n.GoalState == state
}

// IsPrimaryLike returns whether either side of the node's state pair belongs
// to the primary set. Used to locate the primary of a group, including one
// that is mid-transition.
func (n *Node) IsPrimaryLike() bool {
	return n.GoalState.BelongsToPrimary() || n.ReportedState.BelongsToPrimary()
}

// IsInPrimaryState returns whether the node is a converged primary.
func (n *Node) IsInPrimaryState() bool {
	return n.GoalState == n.ReportedState && n.GoalState.BelongsToPrimary()
}

// Clone returns a by-value copy of the node record.
func (n *Node) Clone() *Node {
	clone := *n
	return &clone
}

// FormationKind tags how a formation routes writes.
type FormationKind int

const (
	// KindPlain is a single-group formation, clients connect to the primary directly
	KindPlain FormationKind = iota
	// KindSharded is a multi-group formation behind a routing layer that
	// fences writes during failover
	KindSharded
)

// String returns the string representation of a FormationKind
func (k FormationKind) String() string {
	switch k {
	case KindSharded:
		return "sharded"
	default:
		return "plain"
	}
}

// ParseFormationKind converts a formation kind name.
func ParseFormationKind(name string) (FormationKind, error) {
	switch name {
	case "plain":
		return KindPlain, nil
	case "sharded":
		return KindSharded, nil
	default:
		return KindPlain, fmt.Errorf("%w: %q", ErrUnknownFormationKind, name)
	}
}

// Formation is a logical cluster of one or more groups sharing thresholds and
// timers. The engine treats these as inputs, not constants.
type Formation struct {
	ID     string
	Kind   FormationKind
	DBName string

	// EnableSecondary gates whether new nodes may join a non-empty group
	EnableSecondary bool

	// EnableSyncLagBytes is the max lag at which a catching-up standby is
	// promoted to secondary and synchronous replication turned on
	EnableSyncLagBytes int64

	// PromoteLagBytes is the max lag at which a secondary may take over from
	// a failed primary
	PromoteLagBytes int64

	DrainTimeout       time.Duration
	UnhealthyTimeout   time.Duration
	StartupGracePeriod time.Duration
}

// DefaultFormation returns a formation with the stock thresholds: one WAL
// segment of lag tolerance and the default failover timers.
func DefaultFormation(id string) *Formation {
	return &Formation{
		ID:                 id,
		Kind:               KindPlain,
		DBName:             "postgres",
		EnableSecondary:    true,
		EnableSyncLagBytes: 16 * 1024 * 1024,
		PromoteLagBytes:    16 * 1024 * 1024,
		DrainTimeout:       30 * time.Second,
		UnhealthyTimeout:   20 * time.Second,
		StartupGracePeriod: 10 * time.Second,
	}
}

// Clone returns a by-value copy of the formation record.
func (f *Formation) Clone() *Formation {
	clone := *f
	return &clone
}
