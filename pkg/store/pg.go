package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists formations, nodes and events in PostgreSQL. Every event
// insert also runs pg_notify on the state and log channels, so external
// subscribers can follow the monitor with a plain LISTEN.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a new PostgreSQL-backed store
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pooling configuration
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}

	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// migrate creates the tables if they don't exist
func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS formation (
			formationid           text PRIMARY KEY,
			kind                  text NOT NULL DEFAULT 'plain',
			dbname                text NOT NULL DEFAULT 'postgres',
			opt_secondary         boolean NOT NULL DEFAULT true,
			enable_sync_lag_bytes bigint NOT NULL,
			promote_lag_bytes     bigint NOT NULL,
			drain_timeout_ms      bigint NOT NULL,
			unhealthy_timeout_ms  bigint NOT NULL,
			startup_grace_ms      bigint NOT NULL
		);

		CREATE TABLE IF NOT EXISTS node (
			nodeid              bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			formationid         text NOT NULL REFERENCES formation(formationid),
			groupid             int NOT NULL,
			nodename            text NOT NULL,
			nodeport            int NOT NULL,
			goalstate           text NOT NULL,
			reportedstate       text NOT NULL,
			reportedpgisrunning boolean NOT NULL DEFAULT false,
			reportedrepstate    text NOT NULL DEFAULT '',
			reporttime          timestamptz NOT NULL,
			walreporttime       timestamptz NOT NULL,
			health              text NOT NULL DEFAULT 'unknown',
			healthchecktime     timestamptz NOT NULL,
			statechangetime     timestamptz NOT NULL,
			reportedlsn         bigint NOT NULL DEFAULT 0,
			candidatepriority   int NOT NULL DEFAULT 100,
			replicationquorum   boolean NOT NULL DEFAULT true,
			UNIQUE (formationid, nodename, nodeport)
		);

		CREATE INDEX IF NOT EXISTS node_group_idx ON node (formationid, groupid);

		CREATE TABLE IF NOT EXISTS event (
			eventid           bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			eventtime         timestamptz NOT NULL DEFAULT now(),
			formationid       text NOT NULL,
			groupid           int NOT NULL,
			nodeid            bigint NOT NULL,
			nodename          text NOT NULL,
			nodeport          int NOT NULL,
			reportedstate     text NOT NULL,
			goalstate         text NOT NULL,
			reportedrepstate  text NOT NULL DEFAULT '',
			reportedlsn       bigint NOT NULL DEFAULT 0,
			candidatepriority int NOT NULL,
			replicationquorum boolean NOT NULL,
			description       text NOT NULL
		);

		CREATE INDEX IF NOT EXISTS event_formation_idx ON event (formationid, eventid DESC);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
