package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/cluso-failover/pkg/fsm"
)

const nodeColumns = `
	nodeid, formationid, groupid, nodename, nodeport,
	goalstate, reportedstate, reportedpgisrunning, reportedrepstate,
	reporttime, walreporttime, health, healthchecktime, statechangetime,
	reportedlsn, candidatepriority, replicationquorum
`

// CreateFormation adds a formation row
func (s *PGStore) CreateFormation(ctx context.Context, formation *fsm.Formation) error {
	query := `
		INSERT INTO formation (formationid, kind, dbname, opt_secondary,
			enable_sync_lag_bytes, promote_lag_bytes,
			drain_timeout_ms, unhealthy_timeout_ms, startup_grace_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (formationid) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		formation.ID,
		formation.Kind.String(),
		formation.DBName,
		formation.EnableSecondary,
		formation.EnableSyncLagBytes,
		formation.PromoteLagBytes,
		formation.DrainTimeout.Milliseconds(),
		formation.UnhealthyTimeout.Milliseconds(),
		formation.StartupGracePeriod.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to create formation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrFormationExists, formation.ID)
	}
	return nil
}

// GetFormation retrieves a formation by id
func (s *PGStore) GetFormation(ctx context.Context, formationID string) (*fsm.Formation, error) {
	query := `
		SELECT formationid, kind, dbname, opt_secondary,
			enable_sync_lag_bytes, promote_lag_bytes,
			drain_timeout_ms, unhealthy_timeout_ms, startup_grace_ms
		FROM formation
		WHERE formationid = $1
	`

	formation := &fsm.Formation{}
	var kind string
	var drainMs, unhealthyMs, graceMs int64

	err := s.pool.QueryRow(ctx, query, formationID).Scan(
		&formation.ID,
		&kind,
		&formation.DBName,
		&formation.EnableSecondary,
		&formation.EnableSyncLagBytes,
		&formation.PromoteLagBytes,
		&drainMs,
		&unhealthyMs,
		&graceMs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrFormationNotFound, formationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get formation: %w", err)
	}

	formation.Kind, err = fsm.ParseFormationKind(kind)
	if err != nil {
		return nil, err
	}
	formation.DrainTimeout = time.Duration(drainMs) * time.Millisecond
	formation.UnhealthyTimeout = time.Duration(unhealthyMs) * time.Millisecond
	formation.StartupGracePeriod = time.Duration(graceMs) * time.Millisecond

	return formation, nil
}

// SetFormationKind switches a formation between plain and sharded
func (s *PGStore) SetFormationKind(ctx context.Context, formationID string, kind fsm.FormationKind) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE formation SET kind = $2 WHERE formationid = $1`,
		formationID, kind.String())
	if err != nil {
		return fmt.Errorf("failed to set formation kind: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrFormationNotFound, formationID)
	}
	return nil
}

// AddNode creates the node row and returns it with its assigned node id
func (s *PGStore) AddNode(ctx context.Context, node *fsm.Node) (*fsm.Node, error) {
	query := `
		INSERT INTO node (formationid, groupid, nodename, nodeport,
			goalstate, reportedstate, reportedpgisrunning, reportedrepstate,
			reporttime, walreporttime, health, healthchecktime, statechangetime,
			reportedlsn, candidatepriority, replicationquorum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (formationid, nodename, nodeport) DO NOTHING
		RETURNING nodeid
	`

	row := node.Clone()
	err := s.pool.QueryRow(ctx, query,
		row.FormationID,
		row.GroupID,
		row.Name,
		row.Port,
		row.GoalState.String(),
		row.ReportedState.String(),
		row.PgIsRunning,
		row.SyncState.String(),
		row.ReportTime,
		row.WalReportTime,
		row.Health.String(),
		row.HealthCheckTime,
		row.StateChangeTime,
		int64(row.ReportedLSN),
		row.CandidatePriority,
		row.ReplicationQuorum,
	).Scan(&row.NodeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, node.Addr())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add node: %w", err)
	}

	return row, nil
}

// GetNode retrieves a node by id
func (s *PGStore) GetNode(ctx context.Context, nodeID int64) (*fsm.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM node WHERE nodeid = $1`

	node, err := scanNode(s.pool.QueryRow(ctx, query, nodeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	return node, err
}

// GetNodeByAddr looks a node up by formation, name and port
func (s *PGStore) GetNodeByAddr(ctx context.Context, formationID, name string, port int) (*fsm.Node, error) {
	query := `SELECT ` + nodeColumns + `
		FROM node WHERE formationid = $1 AND nodename = $2 AND nodeport = $3`

	node, err := scanNode(s.pool.QueryRow(ctx, query, formationID, name, port))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%d in formation %q",
			ErrNodeNotFound, name, port, formationID)
	}
	return node, err
}

// GroupNodes returns every node of one group, in node id order
func (s *PGStore) GroupNodes(ctx context.Context, formationID string, groupID int) ([]*fsm.Node, error) {
	query := `SELECT ` + nodeColumns + `
		FROM node WHERE formationid = $1 AND groupid = $2 ORDER BY nodeid`

	rows, err := s.pool.Query(ctx, query, formationID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// FormationNodes returns every node of a formation, in node id order
func (s *PGStore) FormationNodes(ctx context.Context, formationID string) ([]*fsm.Node, error) {
	query := `SELECT ` + nodeColumns + `
		FROM node WHERE formationid = $1 ORDER BY nodeid`

	rows, err := s.pool.Query(ctx, query, formationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list formation nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// AllNodes returns every registered node, in node id order
func (s *PGStore) AllNodes(ctx context.Context) ([]*fsm.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM node ORDER BY nodeid`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// ReportNodeState updates the reported fields of a node row. A report whose
// LSN is behind the stored value keeps the stored LSN.
func (s *PGStore) ReportNodeState(ctx context.Context, report *NodeReport) (*fsm.Node, bool, error) {
	query := `
		UPDATE node SET
			reportedstate = $2,
			reportedpgisrunning = $3,
			reportedrepstate = $4,
			reporttime = $5,
			reportedlsn = GREATEST(reportedlsn, $6),
			walreporttime = CASE WHEN $6 >= reportedlsn THEN $5 ELSE walreporttime END
		WHERE nodeid = $1
		RETURNING ` + nodeColumns

	node, err := scanNode(s.pool.QueryRow(ctx, query,
		report.NodeID,
		report.ReportedState.String(),
		report.PgIsRunning,
		report.SyncState.String(),
		report.ReportTime,
		int64(report.ReportedLSN),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: id %d", ErrNodeNotFound, report.NodeID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to report node state: %w", err)
	}

	staleLSN := report.ReportedLSN < node.ReportedLSN
	return node, staleLSN, nil
}

// ReportNodeHealth records the outcome of an external health probe
func (s *PGStore) ReportNodeHealth(ctx context.Context, nodeID int64, health fsm.NodeHealth, checkTime time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE node SET health = $2, healthchecktime = $3 WHERE nodeid = $1`,
		nodeID, health.String(), checkTime)
	if err != nil {
		return fmt.Errorf("failed to report node health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	return nil
}

// SetNodeReplicationSettings updates candidate priority and quorum flag
func (s *PGStore) SetNodeReplicationSettings(ctx context.Context, nodeID int64, candidatePriority int, replicationQuorum bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE node SET candidatepriority = $2, replicationquorum = $3 WHERE nodeid = $1`,
		nodeID, candidatePriority, replicationQuorum)
	if err != nil {
		return fmt.Errorf("failed to set replication settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	return nil
}

// SetNodeGoalState assigns a goal state outside an engine decision
func (s *PGStore) SetNodeGoalState(ctx context.Context, nodeID int64, goalState fsm.ReplicationState, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE node SET goalstate = $2, statechangetime = $3 WHERE nodeid = $1`,
		nodeID, goalState.String(), at)
	if err != nil {
		return fmt.Errorf("failed to set goal state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	return nil
}

// RemoveNode deletes the node row
func (s *PGStore) RemoveNode(ctx context.Context, nodeID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM node WHERE nodeid = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to remove node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, nodeID)
	}
	return nil
}

// scanNode reads one node row
func scanNode(row pgx.Row) (*fsm.Node, error) {
	node := &fsm.Node{}
	var goalState, reportedState, syncState, health string
	var reportedLSN int64

	err := row.Scan(
		&node.NodeID,
		&node.FormationID,
		&node.GroupID,
		&node.Name,
		&node.Port,
		&goalState,
		&reportedState,
		&node.PgIsRunning,
		&syncState,
		&node.ReportTime,
		&node.WalReportTime,
		&health,
		&node.HealthCheckTime,
		&node.StateChangeTime,
		&reportedLSN,
		&node.CandidatePriority,
		&node.ReplicationQuorum,
	)
	if err != nil {
		return nil, err
	}

	if node.GoalState, err = fsm.ParseReplicationState(goalState); err != nil {
		return nil, err
	}
	if node.ReportedState, err = fsm.ParseReplicationState(reportedState); err != nil {
		return nil, err
	}
	node.SyncState = fsm.ParseSyncState(syncState)
	node.Health = fsm.ParseNodeHealth(health)
	node.ReportedLSN = uint64(reportedLSN)

	return node, nil
}

// collectNodes reads all node rows of a query
func collectNodes(rows pgx.Rows) ([]*fsm.Node, error) {
	nodes := []*fsm.Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read node rows: %w", err)
	}
	return nodes, nil
}
