package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finetune-orchestrator/core/models"
)

func newRecord(id string, status models.JobStatus) *models.JobRecord {
	return &models.JobRecord{
		ID:                   id,
		Backend:              models.BackendWorkflowDispatch,
		Status:               status,
		Model:                "Qwen2.5-0.5B",
		Dataset:              "open-r1/codeforces-cots",
		Method:               models.MethodSFT,
		Hardware:             "t4-small",
		Config:               map[string]string{"epochs": "3"},
		EstimatedCostUSD:     0.20,
		EstimatedTimeMinutes: 15.6,
		BackendRef:           "12345",
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	created, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := reg.Get(ctx, "gh-1")
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCreateDuplicateID(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	require.NoError(t, err)

	_, err = reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetNotFound(t *testing.T) {
	reg := NewMemoryRegistry()
	_, err := reg.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPartialUpdateLeavesOtherFields(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	created, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	require.NoError(t, err)

	status := models.JobStatusRunning
	updated, err := reg.Update(ctx, "gh-1", JobUpdate{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusRunning, updated.Status)
	assert.Equal(t, created.Model, updated.Model)
	assert.Equal(t, created.Config, updated.Config)
	assert.Equal(t, created.EstimatedCostUSD, updated.EstimatedCostUSD)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestUpdateUnknownID(t *testing.T) {
	reg := NewMemoryRegistry()
	status := models.JobStatusRunning
	_, err := reg.Update(context.Background(), "nope", JobUpdate{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusRunning))
	require.NoError(t, err)

	completed := models.JobStatusCompleted
	_, err = reg.Update(ctx, "gh-1", JobUpdate{Status: &completed})
	require.NoError(t, err)

	// A racing poll writing a stale status is dropped; other fields apply.
	running := models.JobStatusRunning
	cost := 0.18
	updated, err := reg.Update(ctx, "gh-1", JobUpdate{Status: &running, ActualCostUSD: &cost})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, updated.Status)
	require.NotNil(t, updated.ActualCostUSD)
	assert.Equal(t, 0.18, *updated.ActualCostUSD)
}

func TestListOrderFilterLimitOffset(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := models.JobStatusPending
		if i%2 == 1 {
			status = models.JobStatusRunning
		}
		_, err := reg.Create(ctx, newRecord(fmt.Sprintf("gh-%d", i), status))
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	all, err := reg.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i-1].CreatedAt.Before(all[i].CreatedAt), "not sorted by created_at desc")
	}

	allExplicit, err := reg.List(ctx, ListOptions{Status: "all"})
	require.NoError(t, err)
	assert.Len(t, allExplicit, 5)

	running, err := reg.List(ctx, ListOptions{Status: "running"})
	require.NoError(t, err)
	assert.Len(t, running, 2)
	for _, record := range running {
		assert.Equal(t, models.JobStatusRunning, record.Status)
	}

	paged, err := reg.List(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, all[1].ID, paged[0].ID)
	assert.Equal(t, all[2].ID, paged[1].ID)

	past, err := reg.List(ctx, ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestDelete(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "gh-1"))
	_, err = reg.Get(ctx, "gh-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Delete(ctx, "gh-1"), ErrNotFound)
}

func TestStats(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	require.NoError(t, err)
	_, err = reg.Create(ctx, newRecord("gh-2", models.JobStatusRunning))
	require.NoError(t, err)
	_, err = reg.Create(ctx, newRecord("gh-3", models.JobStatusRunning))
	require.NoError(t, err)

	completed := models.JobStatusCompleted
	cost := 0.25
	_, err = reg.Update(ctx, "gh-3", JobUpdate{Status: &completed, ActualCostUSD: &cost})
	require.NoError(t, err)

	stats, err := reg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalJobs)
	assert.Equal(t, 1, stats.StatusCounts[models.JobStatusPending])
	assert.Equal(t, 1, stats.StatusCounts[models.JobStatusRunning])
	assert.Equal(t, 1, stats.StatusCounts[models.JobStatusCompleted])
	assert.InDelta(t, 0.60, stats.TotalEstimatedCostUSD, 1e-9)
	assert.InDelta(t, 0.25, stats.TotalActualCostUSD, 1e-9)
}

func TestEvents(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	from := models.JobStatusPending
	for i, to := range []models.JobStatus{models.JobStatusRunning, models.JobStatusCompleted} {
		err := reg.AppendEvent(ctx, &models.JobEvent{
			ID:         uuid.NewString(),
			JobID:      "gh-1",
			FromStatus: &from,
			ToStatus:   to,
			Reason:     "status_poll",
			At:         time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	events, err := reg.ListEvents(ctx, "gh-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.JobStatusCompleted, events[0].ToStatus)
	assert.Equal(t, models.JobStatusRunning, events[1].ToStatus)
}

func TestConcurrentUpdatesDoNotLoseFields(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, err := reg.Create(ctx, newRecord("gh-1", models.JobStatusPending))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		status := models.JobStatusRunning
		reg.Update(ctx, "gh-1", JobUpdate{Status: &status})
	}()
	go func() {
		defer wg.Done()
		url := "https://example.com/runs/1"
		reg.Update(ctx, "gh-1", JobUpdate{WorkflowURL: &url})
	}()
	wg.Wait()

	got, err := reg.Get(ctx, "gh-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, "https://example.com/runs/1", got.WorkflowURL)
}
