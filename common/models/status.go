package models

import (
	"encoding/json"
	"time"
)

// JobState is the externally visible lifecycle state of a job
type JobState string

const (
	StateQueued     JobState = "queued"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// IsTerminal reports whether no further transitions are expected
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is one of the known states
func (s JobState) Valid() bool {
	switch s {
	case StateQueued, StateProcessing, StateCompleted, StateFailed:
		return true
	}
	return false
}

// JobStatus is the single status record kept per job id. Later writes overwrite earlier ones.
type JobStatus struct {
	JobID     string          `json:"job_id"`
	State     JobState        `json:"state"`
	Progress  int             `json:"progress"`
	Result    json.RawMessage `json:"result"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// QueuedStatus is the record written at publish time
func QueuedStatus(jobID string) JobStatus {
	return JobStatus{JobID: jobID, State: StateQueued, Progress: 0, UpdatedAt: time.Now().UTC()}
}

// ProcessingStatus is written when a slot starts work and on every progress report
func ProcessingStatus(jobID string, progress int) JobStatus {
	return JobStatus{JobID: jobID, State: StateProcessing, Progress: progress, UpdatedAt: time.Now().UTC()}
}

// CompletedStatus carries the encoded result
func CompletedStatus(jobID string, result json.RawMessage) JobStatus {
	return JobStatus{JobID: jobID, State: StateCompleted, Progress: 100, Result: result, UpdatedAt: time.Now().UTC()}
}

// FailedStatus has progress 0 and no result
func FailedStatus(jobID string) JobStatus {
	return JobStatus{JobID: jobID, State: StateFailed, Progress: 0, UpdatedAt: time.Now().UTC()}
}
