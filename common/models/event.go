package models

import "time"

// EventType names a job lifecycle event
type EventType string

const (
	EventJobStarted     EventType = "job.started"
	EventAttemptFailed  EventType = "attempt.failed"
	EventAttemptTimeout EventType = "attempt.timeout"
	EventJobCompleted   EventType = "job.completed"
	EventJobFailed      EventType = "job.failed"
	EventJobRequeued    EventType = "job.requeued"
	EventJobRejected    EventType = "job.rejected"
)

// JobEvent is one entry of a job's event log
type JobEvent struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	EventType EventType      `json:"event_type"`
	Attempt   int            `json:"attempt"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
