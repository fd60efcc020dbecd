// Package repository provides the durable job registry. Two implementations
// share one contract: Postgres for production and an in-memory store used when
// no database is configured and by tests.
package repository

import (
	"context"
	"errors"

	"finetune-orchestrator/core/models"
)

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateID is returned when Create sees an id that already exists.
	// Under correct id namespacing this indicates a defect, not a user error.
	ErrDuplicateID = errors.New("job id already exists")
)

// JobUpdate is a partial-field update. Nil fields are left untouched.
// A status change that would move a record out of a terminal status is
// silently dropped; the remaining fields still apply. Every update advances
// UpdatedAt.
type JobUpdate struct {
	Status        *models.JobStatus
	ActualCostUSD *float64
	WorkflowURL   *string
	MonitorURL    *string
}

// ListOptions filters and pages a job listing. Status "all" or empty means no
// filtering. Limit and Offset apply after filtering and sorting; the default
// order is CreatedAt descending.
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// RegistryStats aggregates registry contents.
type RegistryStats struct {
	TotalJobs             int                      `json:"total_jobs"`
	StatusCounts          map[models.JobStatus]int `json:"status_counts"`
	TotalEstimatedCostUSD float64                  `json:"total_estimated_cost_usd"`
	TotalActualCostUSD    float64                  `json:"total_actual_cost_usd"`
}

// JobRegistry is the durable keyed store of job records. Mutations on the
// same id are linearizable; readers never observe a partially written record.
type JobRegistry interface {
	Create(ctx context.Context, record *models.JobRecord) (*models.JobRecord, error)
	Get(ctx context.Context, id string) (*models.JobRecord, error)
	Update(ctx context.Context, id string, update JobUpdate) (*models.JobRecord, error)
	List(ctx context.Context, opts ListOptions) ([]*models.JobRecord, error)
	// Delete removes a record. Explicit administrative operation; records are
	// never deleted automatically.
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*RegistryStats, error)

	AppendEvent(ctx context.Context, event *models.JobEvent) error
	ListEvents(ctx context.Context, jobID string, limit int) ([]*models.JobEvent, error)
}
