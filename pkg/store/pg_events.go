package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/cluso-failover/pkg/events"
	"github.com/dd0wney/cluso-failover/pkg/fsm"
)

const insertEventQuery = `
	INSERT INTO event (formationid, groupid, nodeid, nodename, nodeport,
		reportedstate, goalstate, reportedrepstate, reportedlsn,
		candidatepriority, replicationquorum, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING eventid, eventtime
`

// InsertEvent persists one event row and notifies the state and log channels.
func (s *PGStore) InsertEvent(ctx context.Context, change *events.StateChange) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	eventID, err := insertEventTx(ctx, tx, change)
	if err != nil {
		return 0, err
	}
	if err := notifyTx(ctx, tx, change); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit event: %w", err)
	}
	return eventID, nil
}

// ApplyAssignments commits one engine invocation in a single transaction:
// every goal state write and its event row succeed or fail together. The
// pg_notify payloads ride the same transaction and are delivered on commit.
func (s *PGStore) ApplyAssignments(ctx context.Context, changes []*events.StateChange, at time.Time) ([]int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(changes))
	for _, change := range changes {
		tag, err := tx.Exec(ctx,
			`UPDATE node SET goalstate = $2, statechangetime = $3 WHERE nodeid = $1`,
			change.NodeID, change.GoalState.String(), at)
		if err != nil {
			return nil, fmt.Errorf("failed to assign goal state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, change.NodeID)
		}

		eventID, err := insertEventTx(ctx, tx, change)
		if err != nil {
			return nil, err
		}
		if err := notifyTx(ctx, tx, change); err != nil {
			return nil, err
		}
		ids = append(ids, eventID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit assignments: %w", err)
	}
	return ids, nil
}

// RecentEvents returns the latest events of a formation, newest first
func (s *PGStore) RecentEvents(ctx context.Context, formationID string, limit int) ([]*events.StateChange, error) {
	query := `
		SELECT eventid, eventtime, formationid, groupid, nodeid, nodename,
			nodeport, reportedstate, goalstate, reportedrepstate, reportedlsn,
			candidatepriority, replicationquorum, description
		FROM event
		WHERE formationid = $1
		ORDER BY eventid DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, formationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	recent := []*events.StateChange{}
	for rows.Next() {
		change := &events.StateChange{}
		var reportedState, goalState, syncState string
		var reportedLSN int64

		err := rows.Scan(
			&change.EventID,
			&change.EventTime,
			&change.FormationID,
			&change.GroupID,
			&change.NodeID,
			&change.NodeName,
			&change.NodePort,
			&reportedState,
			&goalState,
			&syncState,
			&reportedLSN,
			&change.CandidatePriority,
			&change.ReplicationQuorum,
			&change.Description,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to read event row: %w", err)
		}

		if change.ReportedState, err = fsm.ParseReplicationState(reportedState); err != nil {
			return nil, err
		}
		if change.GoalState, err = fsm.ParseReplicationState(goalState); err != nil {
			return nil, err
		}
		change.SyncState = fsm.ParseSyncState(syncState)
		change.ReportedLSN = uint64(reportedLSN)

		recent = append(recent, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return recent, nil
}

// insertEventTx adds the event row inside the given transaction
func insertEventTx(ctx context.Context, tx pgx.Tx, change *events.StateChange) (int64, error) {
	var eventID int64
	var eventTime time.Time

	err := tx.QueryRow(ctx, insertEventQuery,
		change.FormationID,
		change.GroupID,
		change.NodeID,
		change.NodeName,
		change.NodePort,
		change.ReportedState.String(),
		change.GoalState.String(),
		change.SyncState.String(),
		int64(change.ReportedLSN),
		change.CandidatePriority,
		change.ReplicationQuorum,
		change.Description,
	).Scan(&eventID, &eventTime)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	change.EventID = eventID
	change.EventTime = eventTime
	return eventID, nil
}

// notifyTx queues the state and log notifications, delivered on commit
func notifyTx(ctx context.Context, tx pgx.Tx, change *events.StateChange) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`,
		events.ChannelState, change.StatePayload()); err != nil {
		return fmt.Errorf("failed to notify state channel: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`,
		events.ChannelLog, change.Description); err != nil {
		return fmt.Errorf("failed to notify log channel: %w", err)
	}
	return nil
}
