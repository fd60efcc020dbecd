// Package backends defines the contract shared by the external training
// backends and the mapping of their status vocabularies onto the canonical one.
package backends

import (
	"context"
	"errors"

	"finetune-orchestrator/core/models"
)

// ErrUnavailable signals that a backend cannot accept work at all, typically
// because its credentials are not configured. The orchestrator treats it as a
// fast fallback trigger, not a failure of the request itself.
var ErrUnavailable = errors.New("backend not available")

// SubmitRequest carries the validated training parameters to a backend.
type SubmitRequest struct {
	Model     string
	Dataset   string
	Method    models.TrainingMethod
	Hardware  string
	Config    map[string]string
	Epochs    int
	BatchSize int
}

// Submission is the result of a successful backend submission.
type Submission struct {
	// Ref is the backend's opaque handle for the job (job handle or run id).
	Ref string
	// WorkflowURL and MonitorURL are optional display links.
	WorkflowURL string
	MonitorURL  string
}

// RawStatus is a backend-reported status pair before canonical mapping.
type RawStatus struct {
	Status     string
	Conclusion string
	HTMLURL    string
}

// TrainingBackend is implemented by each external execution system.
// All methods are safe for concurrent use.
type TrainingBackend interface {
	Name() models.Backend

	// Available reports whether the backend is configured and can accept
	// submissions. It must not perform network I/O.
	Available() bool

	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	Status(ctx context.Context, ref string) (*RawStatus, error)
	Cancel(ctx context.Context, ref string) error
}
