package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"finetune-orchestrator/core/models"
)

// MemoryRegistry is an in-memory registry used when no database is configured
// and by tests. Records are copied on the way in and out, so readers never
// observe a partially written record; the mutex serializes mutations.
type MemoryRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*models.JobRecord
	events map[string][]*models.JobEvent
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs:   make(map[string]*models.JobRecord),
		events: make(map[string][]*models.JobEvent),
	}
}

// Create inserts a new record, stamping CreatedAt and UpdatedAt.
func (m *MemoryRegistry) Create(ctx context.Context, record *models.JobRecord) (*models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[record.ID]; exists {
		return nil, ErrDuplicateID
	}

	stored := cloneRecord(record)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	m.jobs[record.ID] = stored
	return cloneRecord(stored), nil
}

// Get retrieves a record by id.
func (m *MemoryRegistry) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(record), nil
}

// Update merges the provided fields. Terminal statuses never regress; such a
// change is dropped while the remaining fields still apply.
func (m *MemoryRegistry) Update(ctx context.Context, id string, update JobUpdate) (*models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	if update.Status != nil && !record.Status.Terminal() {
		record.Status = *update.Status
	}
	if update.ActualCostUSD != nil {
		cost := *update.ActualCostUSD
		record.ActualCostUSD = &cost
	}
	if update.WorkflowURL != nil {
		record.WorkflowURL = *update.WorkflowURL
	}
	if update.MonitorURL != nil {
		record.MonitorURL = *update.MonitorURL
	}

	now := time.Now().UTC()
	if now.After(record.UpdatedAt) {
		record.UpdatedAt = now
	}

	return cloneRecord(record), nil
}

// List returns records ordered by CreatedAt descending.
func (m *MemoryRegistry) List(ctx context.Context, opts ListOptions) ([]*models.JobRecord, error) {
	m.mu.RLock()
	records := make([]*models.JobRecord, 0, len(m.jobs))
	for _, record := range m.jobs {
		if opts.Status != "" && opts.Status != "all" && string(record.Status) != opts.Status {
			continue
		}
		records = append(records, cloneRecord(record))
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return nil, nil
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records, nil
}

// Delete removes a record and its events.
func (m *MemoryRegistry) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	delete(m.events, id)
	return nil
}

// Stats aggregates counts and spend totals by status.
func (m *MemoryRegistry) Stats(ctx context.Context) (*RegistryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &RegistryStats{
		StatusCounts: make(map[models.JobStatus]int),
	}
	for _, record := range m.jobs {
		stats.TotalJobs++
		stats.StatusCounts[record.Status]++
		stats.TotalEstimatedCostUSD += record.EstimatedCostUSD
		if record.ActualCostUSD != nil {
			stats.TotalActualCostUSD += *record.ActualCostUSD
		}
	}
	return stats, nil
}

// AppendEvent records a status transition.
func (m *MemoryRegistry) AppendEvent(ctx context.Context, event *models.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *event
	m.events[event.JobID] = append(m.events[event.JobID], &stored)
	return nil
}

// ListEvents returns a job's transitions, newest first.
func (m *MemoryRegistry) ListEvents(ctx context.Context, jobID string, limit int) ([]*models.JobEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.events[jobID]
	events := make([]*models.JobEvent, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		event := *stored[i]
		events = append(events, &event)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

func cloneRecord(record *models.JobRecord) *models.JobRecord {
	clone := *record
	if record.Config != nil {
		clone.Config = make(map[string]string, len(record.Config))
		for k, v := range record.Config {
			clone.Config[k] = v
		}
	}
	if record.ActualCostUSD != nil {
		cost := *record.ActualCostUSD
		clone.ActualCostUSD = &cost
	}
	return &clone
}

var _ JobRegistry = (*MemoryRegistry)(nil)
