package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"finetune-orchestrator/core/models"
)

// ErrNoBackendAvailable is returned when neither training backend could take
// a submission. No partial record is left behind.
var ErrNoBackendAvailable = errors.New("no training backend available")

// ValidationError reports missing or malformed request fields. It is resolved
// before any I/O happens.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Missing, ", "))
}

// BackendCallError wraps a transient backend failure during status or cancel.
// The stored job state is left untouched so the last-known status survives;
// retry policy belongs to the caller.
type BackendCallError struct {
	Backend models.Backend
	Op      string
	Err     error
}

func (e *BackendCallError) Error() string {
	return fmt.Sprintf("%s call to %s backend failed: %v", e.Op, e.Backend, e.Err)
}

func (e *BackendCallError) Unwrap() error {
	return e.Err
}
