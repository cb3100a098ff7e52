package coordinator

import (
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/metrics"
	"github.com/dd0wney/cluso-failover/pkg/store"
)

// Coordinator is the monitor service: it owns every state-machine decision.
// Decisions are serialized per group, a report is handled to completion
// (snapshot, engine, persist, emit) before the next report for the same group
// runs. Reports for different groups proceed in parallel, the engine never
// reads cross-group state.
//
// Concurrent Safety:
// 1. One mutex per (formation, group) pair, created on first use
// 2. Report ingress and goal assignment both happen under the group mutex
// 3. The engine itself is pure and re-entrant, it runs on by-value snapshots
type Coordinator struct {
	store   store.Store
	emitter *events.Emitter
	engine  *fsm.Engine
	clock   fsm.Clock
	logger  logging.Logger
	metrics *metrics.Registry

	groupsMu sync.Mutex
	groups   map[string]*sync.Mutex
}

// New creates a coordinator on top of the given store and emitter
func New(st store.Store, emitter *events.Emitter, engine *fsm.Engine, clock fsm.Clock, logger logging.Logger) *Coordinator {
	return &Coordinator{
		store:   st,
		emitter: emitter,
		engine:  engine,
		clock:   clock,
		logger:  logger.With(logging.Component("coordinator")),
		metrics: metrics.DefaultRegistry(),
		groups:  make(map[string]*sync.Mutex),
	}
}

// groupLock returns the mutex serializing decisions for one group
func (c *Coordinator) groupLock(formationID string, groupID int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", formationID, groupID)

	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	mu, ok := c.groups[key]
	if !ok {
		mu = &sync.Mutex{}
		c.groups[key] = mu
	}
	return mu
}

// RegisterRequest carries the parameters of a node registration.
type RegisterRequest struct {
	FormationID       string
	GroupID           int // -1 to let the monitor assign one
	Name              string
	Port              int
	Kind              fsm.FormationKind
	CandidatePriority int
	ReplicationQuorum bool
}

// ActiveRequest is one heartbeat from a node agent.
type ActiveRequest struct {
	FormationID   string
	NodeID        int64 // -1 on the first call after registration
	Name          string
	Port          int
	ReportedState fsm.ReplicationState
	PgIsRunning   bool
	ReportedLSN   uint64
	SyncState     fsm.SyncState
}
