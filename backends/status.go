package backends

import (
	"strings"

	"finetune-orchestrator/core/models"
)

// successConclusions are workflow conclusions that count as a successful run.
var successConclusions = map[string]struct{}{
	"success": {},
}

// failureConclusions are workflow conclusions that count as a failed run.
// A backend-side "cancelled" conclusion maps to Failed, not Cancelled: the run
// never went through this system's cancel path and did not reach its goal.
// Cancelled is reserved for cancellations issued here.
var failureConclusions = map[string]struct{}{
	"failure":         {},
	"cancelled":       {},
	"timed_out":       {},
	"startup_failure": {},
	"stale":           {},
}

// pendingStatuses and runningStatuses fold both backend vocabularies
// (workflow runs and the direct API) into the canonical non-terminal states.
var pendingStatuses = map[string]struct{}{
	"queued":  {},
	"waiting": {},
	"pending": {},
}

var runningStatuses = map[string]struct{}{
	"in_progress": {},
	"running":     {},
}

// MapStatus translates a backend-reported (status, conclusion) pair into the
// canonical status. It is a total function: unrecognized input resolves to
// JobStatusUnknown, never an error, so a poll can always retry later.
func MapStatus(rawStatus, rawConclusion string) models.JobStatus {
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	conclusion := strings.ToLower(strings.TrimSpace(rawConclusion))

	if _, ok := pendingStatuses[status]; ok {
		return models.JobStatusPending
	}
	if _, ok := runningStatuses[status]; ok {
		return models.JobStatusRunning
	}

	switch status {
	case "completed":
		if _, ok := successConclusions[conclusion]; ok || conclusion == "" {
			// The direct API reports a bare "completed" with no conclusion.
			return models.JobStatusCompleted
		}
		if _, ok := failureConclusions[conclusion]; ok {
			return models.JobStatusFailed
		}
		return models.JobStatusUnknown
	case "failed", "error":
		return models.JobStatusFailed
	case "cancelled":
		// Direct-API jobs cancelled through this system read back as "cancelled".
		return models.JobStatusCancelled
	}

	return models.JobStatusUnknown
}
