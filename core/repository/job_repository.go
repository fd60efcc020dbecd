package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"finetune-orchestrator/core/models"
)

// JobRepository is the Postgres-backed registry. Every record mutation is a
// single statement against the primary-keyed row, which gives per-id
// linearizability and whole-record atomic replace.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a Postgres job registry.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, backend, status, model, dataset, method, hardware, config_json,
	estimated_cost_usd, estimated_time_minutes, actual_cost_usd, backend_ref,
	workflow_url, monitor_url, created_at, updated_at`

// Create inserts a new record, stamping CreatedAt and UpdatedAt.
func (r *JobRepository) Create(ctx context.Context, record *models.JobRecord) (*models.JobRecord, error) {
	configJSON, err := json.Marshal(record.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.Backend,
		record.Status,
		record.Model,
		record.Dataset,
		record.Method,
		record.Hardware,
		string(configJSON),
		record.EstimatedCostUSD,
		record.EstimatedTimeMinutes,
		record.ActualCostUSD,
		record.BackendRef,
		record.WorkflowURL,
		record.MonitorURL,
		now,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateID
		}
		return nil, err
	}

	created := *record
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// Get retrieves a record by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Update merges the provided fields into a record. The status CASE keeps
// terminal statuses from regressing; the change is dropped, not rejected.
func (r *JobRepository) Update(ctx context.Context, id string, update JobUpdate) (*models.JobRecord, error) {
	query := `
		UPDATE jobs SET
			status = CASE
				WHEN status IN ('completed', 'failed', 'cancelled') THEN status
				ELSE COALESCE($2, status)
			END,
			actual_cost_usd = COALESCE($3, actual_cost_usd),
			workflow_url = COALESCE($4, workflow_url),
			monitor_url = COALESCE($5, monitor_url),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + jobColumns

	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}

	row := r.db.QueryRowContext(ctx, query, id, status, update.ActualCostUSD, update.WorkflowURL, update.MonitorURL)
	return scanJob(row)
}

// List returns records ordered by created_at descending.
func (r *JobRepository) List(ctx context.Context, opts ListOptions) ([]*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []interface{}{}
	argIndex := 1

	if opts.Status != "" && opts.Status != "all" {
		query += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, opts.Status)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, opts.Limit)
		argIndex++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.JobRecord
	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Delete removes a record and its events.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM job_events WHERE job_id = $1`, id)
	return err
}

// Stats aggregates counts and spend totals by status.
func (r *JobRepository) Stats(ctx context.Context) (*RegistryStats, error) {
	stats := &RegistryStats{
		StatusCounts: make(map[models.JobStatus]int),
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), SUM(estimated_cost_usd), SUM(COALESCE(actual_cost_usd, 0))
		FROM jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.JobStatus
		var count int
		var estimated, actual float64
		if err := rows.Scan(&status, &count, &estimated, &actual); err != nil {
			return nil, err
		}
		stats.StatusCounts[status] = count
		stats.TotalJobs += count
		stats.TotalEstimatedCostUSD += estimated
		stats.TotalActualCostUSD += actual
	}
	return stats, rows.Err()
}

// AppendEvent records a status transition.
func (r *JobRepository) AppendEvent(ctx context.Context, event *models.JobEvent) error {
	var fromStatus *string
	if event.FromStatus != nil {
		s := string(*event.FromStatus)
		fromStatus = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_events (id, job_id, from_status, to_status, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.JobID, fromStatus, event.ToStatus, event.Reason, event.At)
	return err
}

// ListEvents returns a job's transitions, newest first.
func (r *JobRepository) ListEvents(ctx context.Context, jobID string, limit int) ([]*models.JobEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, from_status, to_status, reason, at
		FROM job_events
		WHERE job_id = $1
		ORDER BY at DESC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		var fromStatus sql.NullString
		if err := rows.Scan(&event.ID, &event.JobID, &fromStatus, &event.ToStatus, &event.Reason, &event.At); err != nil {
			return nil, err
		}
		if fromStatus.Valid {
			status := models.JobStatus(fromStatus.String)
			event.FromStatus = &status
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.JobRecord, error) {
	var record models.JobRecord
	var configJSON string
	var actualCost sql.NullFloat64

	err := row.Scan(
		&record.ID,
		&record.Backend,
		&record.Status,
		&record.Model,
		&record.Dataset,
		&record.Method,
		&record.Hardware,
		&configJSON,
		&record.EstimatedCostUSD,
		&record.EstimatedTimeMinutes,
		&actualCost,
		&record.BackendRef,
		&record.WorkflowURL,
		&record.MonitorURL,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if actualCost.Valid {
		record.ActualCostUSD = &actualCost.Float64
	}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &record.Config); err != nil {
			return nil, fmt.Errorf("corrupt config for job %s: %w", record.ID, err)
		}
	}

	return &record, nil
}

var _ JobRegistry = (*JobRepository)(nil)
