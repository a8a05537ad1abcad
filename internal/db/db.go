// Package db provides the optional PostgreSQL task-run ledger. When no
// database is configured the agent runs entirely on the filesystem; the
// ledger only adds queryable history of task outcomes.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/snapsolver/internal/pipeline"
	"github.com/jonathan/snapsolver/internal/types"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the ledger table if it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_runs (
			task_id     UUID PRIMARY KEY,
			artifacts   TEXT[] NOT NULL,
			sealed_at   TIMESTAMPTZ NOT NULL,
			status      TEXT NOT NULL,
			stage       TEXT NOT NULL,
			output_path TEXT,
			reason      TEXT,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create task_runs table: %w", err)
	}
	return nil
}

// RecordTask upserts the outcome of one task run. Implements
// pipeline.Ledger.
func (db *DB) RecordTask(ctx context.Context, task types.Task, status string, stage pipeline.Stage, outputPath, reason string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO task_runs (task_id, artifacts, sealed_at, status, stage, output_path, reason)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		 ON CONFLICT (task_id) DO UPDATE
		 SET status = $4, stage = $5, output_path = NULLIF($6, ''), reason = NULLIF($7, ''), recorded_at = NOW()`,
		task.ID, task.Paths(), task.SealedAt, status, string(stage), outputPath, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record task %s: %w", task.ID, err)
	}
	return nil
}
