package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"finetune-orchestrator/core/models"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		conclusion string
		want       models.JobStatus
	}{
		{"queued run", "queued", "", models.JobStatusPending},
		{"waiting run", "waiting", "", models.JobStatusPending},
		{"direct api pending", "pending", "", models.JobStatusPending},
		{"in progress run", "in_progress", "", models.JobStatusRunning},
		{"direct api running", "running", "", models.JobStatusRunning},
		{"completed success", "completed", "success", models.JobStatusCompleted},
		{"completed no conclusion", "completed", "", models.JobStatusCompleted},
		{"completed failure", "completed", "failure", models.JobStatusFailed},
		{"completed timed out", "completed", "timed_out", models.JobStatusFailed},
		{"completed startup failure", "completed", "startup_failure", models.JobStatusFailed},
		// A backend-side cancellation is reported as Failed by policy; only
		// cancellations issued through this system resolve to Cancelled.
		{"completed cancelled", "completed", "cancelled", models.JobStatusFailed},
		{"direct api failed", "failed", "", models.JobStatusFailed},
		{"direct api cancelled", "cancelled", "", models.JobStatusCancelled},
		{"case and whitespace folded", "  Completed ", "SUCCESS", models.JobStatusCompleted},
		{"unknown status", "provisioning", "", models.JobStatusUnknown},
		{"unknown conclusion", "completed", "action_required", models.JobStatusUnknown},
		{"empty pair", "", "", models.JobStatusUnknown},
		{"nonsense pair", "🤷", "definitely-not-a-conclusion", models.JobStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(tt.status, tt.conclusion))
		})
	}
}

// The mapper must be total: every input lands on one of the canonical
// statuses and identical input always yields identical output.
func TestMapStatusTotalAndDeterministic(t *testing.T) {
	canonical := map[models.JobStatus]struct{}{
		models.JobStatusPending:   {},
		models.JobStatusRunning:   {},
		models.JobStatusCompleted: {},
		models.JobStatusFailed:    {},
		models.JobStatusCancelled: {},
		models.JobStatusUnknown:   {},
	}

	statuses := []string{"", "queued", "waiting", "pending", "in_progress", "running",
		"completed", "failed", "error", "cancelled", "requested", "garbage", "COMPLETED\n"}
	conclusions := []string{"", "success", "failure", "cancelled", "timed_out",
		"neutral", "skipped", "action_required", "???"}

	for _, s := range statuses {
		for _, c := range conclusions {
			first := MapStatus(s, c)
			_, ok := canonical[first]
			assert.True(t, ok, "MapStatus(%q, %q) = %q is not canonical", s, c, first)
			assert.Equal(t, first, MapStatus(s, c))
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, models.JobStatusCompleted.Terminal())
	assert.True(t, models.JobStatusFailed.Terminal())
	assert.True(t, models.JobStatusCancelled.Terminal())
	assert.False(t, models.JobStatusPending.Terminal())
	assert.False(t, models.JobStatusRunning.Terminal())
	assert.False(t, models.JobStatusUnknown.Terminal())
}
