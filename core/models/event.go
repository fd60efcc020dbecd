package models

import "time"

// JobEvent records a single status transition for a job. Events are
// append-only and ordered by At.
type JobEvent struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	FromStatus *JobStatus `json:"from_status,omitempty"`
	ToStatus   JobStatus  `json:"to_status"`
	Reason     string     `json:"reason"`
	At         time.Time  `json:"at"`
}
