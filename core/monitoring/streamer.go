// Package monitoring provides the progress streamer: a cancellable polling
// task that forwards status snapshots for one job to one subscriber.
package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"

	"finetune-orchestrator/core/orchestrator"
	"finetune-orchestrator/core/repository"
)

// StatusSource is the slice of the orchestrator the streamer needs.
type StatusSource interface {
	GetStatus(ctx context.Context, id string) (*orchestrator.StatusReport, error)
}

// Snapshot is one progress observation. Err carries transient poll failures;
// the stream keeps going after them because the last-known status still holds.
type Snapshot struct {
	JobID  string                     `json:"job_id"`
	Report *orchestrator.StatusReport `json:"report,omitempty"`
	Err    error                      `json:"-"`
	At     time.Time                  `json:"at"`
}

// Streamer periodically polls job status until the job reaches a terminal
// state or the subscriber cancels.
type Streamer struct {
	source   StatusSource
	interval time.Duration
}

// NewStreamer creates a streamer polling at the given interval.
func NewStreamer(source StatusSource, interval time.Duration) *Streamer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Streamer{source: source, interval: interval}
}

// Stream starts the producer goroutine for one job and returns its snapshot
// channel. The channel is closed, and the ticker released, when the job turns
// terminal, the job id is unknown, or ctx is cancelled; cancellation stops
// polling within one tick. The channel is bounded, so a subscriber that stops
// reading without cancelling does not pile up snapshots.
func (s *Streamer) Stream(ctx context.Context, jobID string) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// First poll immediately, then on the ticker.
		for {
			report, err := s.source.GetStatus(ctx, jobID)
			if errors.Is(err, repository.ErrNotFound) {
				s.send(ctx, out, Snapshot{JobID: jobID, Err: err, At: time.Now().UTC()})
				return
			}

			if !s.send(ctx, out, Snapshot{JobID: jobID, Report: report, Err: err, At: time.Now().UTC()}) {
				return
			}

			if err == nil && report.Status.Terminal() {
				log.Info().Str("job_id", jobID).Str("status", string(report.Status)).
					Msg("Progress stream finished")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// send delivers a snapshot unless the subscriber has gone away. It blocks on
// a full channel so the subscriber controls pacing; cancellation unblocks it.
func (s *Streamer) send(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
