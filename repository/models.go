package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type MediaJobEvent struct {
	ID        string             `json:"id"`
	JobID     string             `json:"job_id"`
	EventType string             `json:"event_type"`
	Attempt   int32              `json:"attempt"`
	Message   string             `json:"message"`
	Details   []byte             `json:"details"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type MediaJobStatus struct {
	JobID     string             `json:"job_id"`
	State     string             `json:"state"`
	Progress  int32              `json:"progress"`
	Result    []byte             `json:"result"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}
