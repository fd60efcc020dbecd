// Package orchestrator drives training requests through estimation, budget
// enforcement, backend submission, and persistence, and later through status
// polling and cancellation, keeping the registry consistent throughout.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"finetune-orchestrator/backends"
	"finetune-orchestrator/core/estimator"
	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/repository"
)

// Orchestrator composes the estimator, the two backend clients, and the
// registry. Mutating operations on the same job id are serialized; different
// ids proceed in parallel.
type Orchestrator struct {
	registry       repository.JobRegistry
	estimator      *estimator.Estimator
	primary        backends.TrainingBackend
	secondary      backends.TrainingBackend
	budgetLimitUSD float64

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
}

// New creates an orchestrator. primary is tried first on submission; secondary
// is the fallback. Either may be unavailable.
func New(
	registry repository.JobRegistry,
	est *estimator.Estimator,
	primary backends.TrainingBackend,
	secondary backends.TrainingBackend,
	budgetLimitUSD float64,
) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		estimator:      est,
		primary:        primary,
		secondary:      secondary,
		budgetLimitUSD: budgetLimitUSD,
		jobLocks:       make(map[string]*sync.Mutex),
	}
}

// CreateRequest carries a training submission.
type CreateRequest struct {
	Model    string
	Dataset  string
	Method   models.TrainingMethod
	Hardware string
	Config   map[string]string
}

// SubmitResult is the outcome of CreateJob. A budget rejection is a normal
// result, not an error: Rejected is set and the estimate and ceiling are
// carried so the caller can render a specific message.
type SubmitResult struct {
	Rejected       bool                 `json:"rejected"`
	Reason         string               `json:"reason,omitempty"`
	Estimate       *models.CostEstimate `json:"estimate"`
	BudgetLimitUSD float64              `json:"budget_limit_usd"`
	Record         *models.JobRecord    `json:"job,omitempty"`
	Message        string               `json:"message"`
}

// StatusReport merges the live backend status with registry metadata.
type StatusReport struct {
	JobID                string                `json:"job_id"`
	Status               models.JobStatus      `json:"status"`
	Backend              models.Backend        `json:"backend"`
	Model                string                `json:"model"`
	Dataset              string                `json:"dataset"`
	Method               models.TrainingMethod `json:"method"`
	Hardware             string                `json:"hardware"`
	EstimatedCostUSD     float64               `json:"estimated_cost_usd"`
	EstimatedTimeMinutes float64               `json:"estimated_time_minutes"`
	ActualCostUSD        *float64              `json:"actual_cost_usd,omitempty"`
	WorkflowURL          string                `json:"workflow_url,omitempty"`
	MonitorURL           string                `json:"monitor_url,omitempty"`
	RawStatus            string                `json:"raw_status,omitempty"`
	RawConclusion        string                `json:"raw_conclusion,omitempty"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// CancelResult is the outcome of CancelJob. Cancelling a job already in a
// terminal status is a no-op success, not an error.
type CancelResult struct {
	JobID           string           `json:"job_id"`
	Status          models.JobStatus `json:"status"`
	AlreadyTerminal bool             `json:"already_terminal"`
	Message         string           `json:"message"`
}

// CreateJob validates the request, quotes it, enforces the budget ceiling,
// submits to a backend, and persists the resulting record. A rejected budget
// check performs zero backend calls and zero registry writes.
func (o *Orchestrator) CreateJob(ctx context.Context, req CreateRequest) (*SubmitResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	epochs := configInt(req.Config, "epochs", 3)
	batchSize := configInt(req.Config, "batch_size", 8)

	estimate := o.estimator.Estimate(ctx, estimator.Request{
		Model:     req.Model,
		Dataset:   req.Dataset,
		Hardware:  req.Hardware,
		Epochs:    epochs,
		BatchSize: batchSize,
	})

	if estimate.EstimatedCostUSD > o.budgetLimitUSD {
		log.Warn().
			Str("model", req.Model).
			Float64("estimated_cost_usd", estimate.EstimatedCostUSD).
			Float64("budget_limit_usd", o.budgetLimitUSD).
			Msg("Training job rejected by budget gate")
		return &SubmitResult{
			Rejected:       true,
			Reason:         "estimated cost exceeds budget limit",
			Estimate:       estimate,
			BudgetLimitUSD: o.budgetLimitUSD,
			Message: fmt.Sprintf("Rejected: estimated cost $%.2f exceeds budget limit $%.2f",
				estimate.EstimatedCostUSD, o.budgetLimitUSD),
		}, nil
	}

	submitReq := backends.SubmitRequest{
		Model:     req.Model,
		Dataset:   req.Dataset,
		Method:    req.Method,
		Hardware:  req.Hardware,
		Config:    req.Config,
		Epochs:    epochs,
		BatchSize: batchSize,
	}

	backend, submission, err := o.submit(ctx, submitReq)
	if err != nil {
		return nil, err
	}

	record := &models.JobRecord{
		ID:                   jobID(backend.Name(), submission.Ref),
		Backend:              backend.Name(),
		Status:               models.JobStatusPending,
		Model:                req.Model,
		Dataset:              req.Dataset,
		Method:               req.Method,
		Hardware:             req.Hardware,
		Config:               req.Config,
		EstimatedCostUSD:     estimate.EstimatedCostUSD,
		EstimatedTimeMinutes: estimate.EstimatedTimeMinutes,
		BackendRef:           submission.Ref,
		WorkflowURL:          submission.WorkflowURL,
		MonitorURL:           submission.MonitorURL,
	}

	created, err := o.registry.Create(ctx, record)
	if err != nil {
		// DuplicateID here means the id namespacing broke; surface it loudly.
		return nil, fmt.Errorf("failed to persist job %s: %w", record.ID, err)
	}

	o.appendEvent(ctx, created.ID, nil, models.JobStatusPending, "job_created")

	log.Info().
		Str("job_id", created.ID).
		Str("backend", string(created.Backend)).
		Str("model", created.Model).
		Float64("estimated_cost_usd", estimate.EstimatedCostUSD).
		Msg("Training job created")

	return &SubmitResult{
		Estimate:       estimate,
		BudgetLimitUSD: o.budgetLimitUSD,
		Record:         created,
		Message: fmt.Sprintf("Training job submitted via %s. Est. cost: $%.2f (~%.0f min on %s)",
			created.Backend, estimate.EstimatedCostUSD, estimate.EstimatedTimeMinutes, req.Hardware),
	}, nil
}

// submit tries the primary backend and falls back to the secondary on any
// primary failure, including "not configured".
func (o *Orchestrator) submit(ctx context.Context, req backends.SubmitRequest) (backends.TrainingBackend, *backends.Submission, error) {
	var primaryErr error
	if o.primary != nil {
		submission, err := o.primary.Submit(ctx, req)
		if err == nil {
			return o.primary, submission, nil
		}
		primaryErr = err
		if !errors.Is(err, backends.ErrUnavailable) {
			log.Warn().Str("backend", string(o.primary.Name())).Err(err).
				Msg("Primary backend submission failed, falling back")
		}
	}

	if o.secondary != nil && o.secondary.Available() {
		submission, err := o.secondary.Submit(ctx, req)
		if err == nil {
			return o.secondary, submission, nil
		}
		return nil, nil, fmt.Errorf("%w: fallback submission failed: %v", ErrNoBackendAvailable, err)
	}

	if primaryErr != nil && !errors.Is(primaryErr, backends.ErrUnavailable) {
		return nil, nil, fmt.Errorf("%w: primary submission failed: %v", ErrNoBackendAvailable, primaryErr)
	}
	return nil, nil, ErrNoBackendAvailable
}

// GetStatus polls the owning backend, maps the result onto the canonical
// status, reconciles the registry, and returns the merged view. A failed
// backend call is surfaced without touching the stored status.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*StatusReport, error) {
	unlock := o.lockJob(id)
	defer unlock()

	record, err := o.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	backend, err := o.backendFor(record.Backend)
	if err != nil {
		return nil, err
	}

	raw, err := backend.Status(ctx, record.BackendRef)
	if err != nil {
		return nil, &BackendCallError{Backend: record.Backend, Op: "status", Err: err}
	}

	canonical := backends.MapStatus(raw.Status, raw.Conclusion)

	update := repository.JobUpdate{Status: &canonical}
	if raw.HTMLURL != "" && record.WorkflowURL == "" {
		update.WorkflowURL = &raw.HTMLURL
	}
	if canonical.Terminal() && !record.Status.Terminal() && record.ActualCostUSD == nil {
		cost := o.actualCost(record)
		update.ActualCostUSD = &cost
	}

	updated, err := o.registry.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}

	if updated.Status != record.Status {
		o.appendEvent(ctx, id, &record.Status, updated.Status, "status_poll")
		log.Info().
			Str("job_id", id).
			Str("from", string(record.Status)).
			Str("to", string(updated.Status)).
			Msg("Job status changed")
	}

	report := reportFrom(updated)
	report.RawStatus = raw.Status
	report.RawConclusion = raw.Conclusion
	return report, nil
}

// CancelJob cancels a non-terminal job on its owning backend and records the
// cancellation. Repeated calls short-circuit on the terminal-state check, so
// the sequence is idempotent and an already-terminal job never reaches the
// backend.
func (o *Orchestrator) CancelJob(ctx context.Context, id string) (*CancelResult, error) {
	unlock := o.lockJob(id)
	defer unlock()

	record, err := o.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.Status.Terminal() {
		return &CancelResult{
			JobID:           id,
			Status:          record.Status,
			AlreadyTerminal: true,
			Message:         fmt.Sprintf("Job is already %s; nothing to cancel", record.Status),
		}, nil
	}

	backend, err := o.backendFor(record.Backend)
	if err != nil {
		return nil, err
	}

	if err := backend.Cancel(ctx, record.BackendRef); err != nil {
		return nil, &BackendCallError{Backend: record.Backend, Op: "cancel", Err: err}
	}

	cancelled := models.JobStatusCancelled
	cost := o.actualCost(record)
	updated, err := o.registry.Update(ctx, id, repository.JobUpdate{
		Status:        &cancelled,
		ActualCostUSD: &cost,
	})
	if err != nil {
		return nil, err
	}

	o.appendEvent(ctx, id, &record.Status, models.JobStatusCancelled, "user_cancelled")

	log.Info().Str("job_id", id).Str("backend", string(record.Backend)).Msg("Job cancelled")

	return &CancelResult{
		JobID:   id,
		Status:  updated.Status,
		Message: "Job cancelled successfully",
	}, nil
}

// ListJobs is a registry passthrough.
func (o *Orchestrator) ListJobs(ctx context.Context, statusFilter string, limit int) ([]*models.JobRecord, error) {
	return o.registry.List(ctx, repository.ListOptions{Status: statusFilter, Limit: limit})
}

// Stats is a registry passthrough.
func (o *Orchestrator) Stats(ctx context.Context) (*repository.RegistryStats, error) {
	return o.registry.Stats(ctx)
}

// DeleteJob removes a record. Explicit administrative operation.
func (o *Orchestrator) DeleteJob(ctx context.Context, id string) error {
	unlock := o.lockJob(id)
	defer unlock()
	return o.registry.Delete(ctx, id)
}

// JobEvents returns a job's status transitions, newest first.
func (o *Orchestrator) JobEvents(ctx context.Context, id string, limit int) ([]*models.JobEvent, error) {
	if _, err := o.registry.Get(ctx, id); err != nil {
		return nil, err
	}
	return o.registry.ListEvents(ctx, id, limit)
}

// EstimateCost quotes a request without submitting it.
func (o *Orchestrator) EstimateCost(ctx context.Context, req estimator.Request) *models.CostEstimate {
	return o.estimator.Estimate(ctx, req)
}

// BudgetLimitUSD returns the configured ceiling.
func (o *Orchestrator) BudgetLimitUSD() float64 {
	return o.budgetLimitUSD
}

func (o *Orchestrator) backendFor(name models.Backend) (backends.TrainingBackend, error) {
	if o.primary != nil && o.primary.Name() == name {
		return o.primary, nil
	}
	if o.secondary != nil && o.secondary.Name() == name {
		return o.secondary, nil
	}
	return nil, fmt.Errorf("%w: no client for backend %s", ErrNoBackendAvailable, name)
}

// actualCost approximates the spend for a finished job: wall time since
// creation priced at the hardware class hourly rate.
func (o *Orchestrator) actualCost(record *models.JobRecord) float64 {
	elapsed := time.Since(record.CreatedAt).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	rate := o.estimator.HourlyRate(record.Hardware)
	return math.Round(rate*elapsed*100) / 100
}

func (o *Orchestrator) appendEvent(ctx context.Context, jobID string, from *models.JobStatus, to models.JobStatus, reason string) {
	err := o.registry.AppendEvent(ctx, &models.JobEvent{
		ID:         uuid.NewString(),
		JobID:      jobID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Str("job_id", jobID).Err(err).Msg("Failed to record job event")
	}
}

// lockJob serializes mutations per job id so a status poll racing a
// cancellation cannot interleave its read-modify-write.
func (o *Orchestrator) lockJob(id string) func() {
	o.mu.Lock()
	lock, ok := o.jobLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.jobLocks[id] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func jobID(backend models.Backend, ref string) string {
	if backend == models.BackendWorkflowDispatch {
		return models.WorkflowIDPrefix + ref
	}
	return ref
}

func reportFrom(record *models.JobRecord) *StatusReport {
	return &StatusReport{
		JobID:                record.ID,
		Status:               record.Status,
		Backend:              record.Backend,
		Model:                record.Model,
		Dataset:              record.Dataset,
		Method:               record.Method,
		Hardware:             record.Hardware,
		EstimatedCostUSD:     record.EstimatedCostUSD,
		EstimatedTimeMinutes: record.EstimatedTimeMinutes,
		ActualCostUSD:        record.ActualCostUSD,
		WorkflowURL:          record.WorkflowURL,
		MonitorURL:           record.MonitorURL,
		UpdatedAt:            record.UpdatedAt,
	}
}

func validate(req CreateRequest) error {
	var missing []string
	if strings.TrimSpace(req.Model) == "" {
		missing = append(missing, "model")
	}
	if strings.TrimSpace(req.Dataset) == "" {
		missing = append(missing, "dataset")
	}
	switch req.Method {
	case models.MethodSFT, models.MethodDPO, models.MethodGRPO:
	default:
		missing = append(missing, "method")
	}
	if strings.TrimSpace(req.Hardware) == "" {
		missing = append(missing, "hardware")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

func configInt(config map[string]string, key string, fallback int) int {
	if raw, ok := config[key]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
