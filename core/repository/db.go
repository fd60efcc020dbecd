package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the sql connection pool used by the Postgres registry.
type DB struct {
	*sql.DB
}

// NewDB opens a Postgres connection and verifies it.
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{DB: db}, nil
}

// EnsureSchema creates the registry tables if they do not exist.
func (db *DB) EnsureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			backend TEXT NOT NULL,
			status TEXT NOT NULL,
			model TEXT NOT NULL,
			dataset TEXT NOT NULL,
			method TEXT NOT NULL,
			hardware TEXT NOT NULL,
			config_json TEXT NOT NULL DEFAULT '{}',
			estimated_cost_usd DOUBLE PRECISION NOT NULL,
			estimated_time_minutes DOUBLE PRECISION NOT NULL,
			actual_cost_usd DOUBLE PRECISION,
			backend_ref TEXT NOT NULL,
			workflow_url TEXT NOT NULL DEFAULT '',
			monitor_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at DESC);

		CREATE TABLE IF NOT EXISTS job_events (
			id UUID PRIMARY KEY,
			job_id TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events (job_id, at DESC);
	`

	_, err := db.Exec(schema)
	return err
}
