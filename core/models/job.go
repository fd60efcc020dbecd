package models

import "time"

// JobRecord represents a fine-tuning job submitted to one of the training backends.
// The registry holds a cached view of backend state for non-terminal jobs; the
// backend stays authoritative until a terminal status is recorded.
type JobRecord struct {
	ID                   string            `json:"job_id"`
	Backend              Backend           `json:"backend"`
	Status               JobStatus         `json:"status"`
	Model                string            `json:"model"`
	Dataset              string            `json:"dataset"`
	Method               TrainingMethod    `json:"method"`
	Hardware             string            `json:"hardware"`
	Config               map[string]string `json:"config,omitempty"`
	EstimatedCostUSD     float64           `json:"estimated_cost_usd"`
	EstimatedTimeMinutes float64           `json:"estimated_time_minutes"`
	ActualCostUSD        *float64          `json:"actual_cost_usd,omitempty"`
	BackendRef           string            `json:"backend_ref"`
	WorkflowURL          string            `json:"workflow_url,omitempty"`
	MonitorURL           string            `json:"monitor_url,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Backend identifies which external system executes a job.
type Backend string

const (
	BackendDirectAPI        Backend = "direct_api"
	BackendWorkflowDispatch Backend = "workflow_dispatch"
)

// TrainingMethod is the fine-tuning algorithm requested for a job.
type TrainingMethod string

const (
	MethodSFT  TrainingMethod = "sft"
	MethodDPO  TrainingMethod = "dpo"
	MethodGRPO TrainingMethod = "grpo"
)

// JobStatus is the canonical status vocabulary used internally regardless
// of which backend runs the job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusUnknown   JobStatus = "unknown"
)

// Terminal reports whether a status permits no further transitions.
// JobStatusUnknown is non-terminal and is always re-polled.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// WorkflowIDPrefix namespaces workflow-dispatch job ids over the raw external
// run id, e.g. "gh-1234567890". Direct-API jobs use the backend handle verbatim,
// so an id can be routed back to its external reference without a lookup.
const WorkflowIDPrefix = "gh-"
