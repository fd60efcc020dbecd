package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finetune-orchestrator/core/models"
	"finetune-orchestrator/core/orchestrator"
	"finetune-orchestrator/core/repository"
)

// scriptedSource returns a fixed sequence of statuses, repeating the last one.
type scriptedSource struct {
	mu       sync.Mutex
	statuses []models.JobStatus
	errs     []error
	calls    int
}

func (s *scriptedSource) GetStatus(ctx context.Context, id string) (*orchestrator.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	if s.errs != nil && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &orchestrator.StatusReport{JobID: id, Status: s.statuses[i]}, nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func collect(t *testing.T, ch <-chan Snapshot) []Snapshot {
	t.Helper()
	var snaps []Snapshot
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return snaps
			}
			snaps = append(snaps, snap)
		case <-timeout:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestStreamStopsAtTerminalStatus(t *testing.T) {
	source := &scriptedSource{statuses: []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusCompleted,
	}}
	streamer := NewStreamer(source, 5*time.Millisecond)

	snaps := collect(t, streamer.Stream(context.Background(), "gh-1"))

	require.Len(t, snaps, 3)
	assert.Equal(t, models.JobStatusPending, snaps[0].Report.Status)
	assert.Equal(t, models.JobStatusRunning, snaps[1].Report.Status)
	assert.Equal(t, models.JobStatusCompleted, snaps[2].Report.Status)
	assert.Equal(t, 3, source.callCount())
}

func TestStreamStopsOnUnknownJob(t *testing.T) {
	source := &scriptedSource{
		statuses: []models.JobStatus{models.JobStatusUnknown},
		errs:     []error{repository.ErrNotFound},
	}
	streamer := NewStreamer(source, 5*time.Millisecond)

	snaps := collect(t, streamer.Stream(context.Background(), "nope"))

	require.Len(t, snaps, 1)
	assert.ErrorIs(t, snaps[0].Err, repository.ErrNotFound)
}

func TestStreamContinuesThroughTransientErrors(t *testing.T) {
	transient := errors.New("rate limited")
	source := &scriptedSource{
		statuses: []models.JobStatus{models.JobStatusRunning, models.JobStatusRunning, models.JobStatusCompleted},
		errs:     []error{nil, transient, nil},
	}
	streamer := NewStreamer(source, 5*time.Millisecond)

	snaps := collect(t, streamer.Stream(context.Background(), "gh-1"))

	require.Len(t, snaps, 3)
	assert.NoError(t, snaps[0].Err)
	assert.ErrorIs(t, snaps[1].Err, transient)
	assert.Equal(t, models.JobStatusCompleted, snaps[2].Report.Status)
}

func TestStreamStopsPromptlyOnCancel(t *testing.T) {
	source := &scriptedSource{statuses: []models.JobStatus{models.JobStatusRunning}}
	streamer := NewStreamer(source, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	ch := streamer.Stream(ctx, "gh-1")

	// Read one snapshot, then walk away.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no first snapshot")
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// One in-flight snapshot may still arrive; the channel must
			// close right after it.
			_, ok = <-ch
			assert.False(t, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not close after cancel")
	}

	polls := source.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, source.callCount(), polls+1, "polling continued after cancel")
}
