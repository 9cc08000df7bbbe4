package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createJobEvent = `-- name: CreateJobEvent :one
INSERT INTO media_job_event (id, job_id, event_type, attempt, message, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, job_id, event_type, attempt, message, details, created_at
`

type CreateJobEventParams struct {
	ID        string             `json:"id"`
	JobID     string             `json:"job_id"`
	EventType string             `json:"event_type"`
	Attempt   int32              `json:"attempt"`
	Message   string             `json:"message"`
	Details   []byte             `json:"details"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

func (q *Queries) CreateJobEvent(ctx context.Context, arg CreateJobEventParams) (MediaJobEvent, error) {
	row := q.db.QueryRow(ctx, createJobEvent,
		arg.ID,
		arg.JobID,
		arg.EventType,
		arg.Attempt,
		arg.Message,
		arg.Details,
		arg.CreatedAt,
	)
	var i MediaJobEvent
	err := row.Scan(
		&i.ID,
		&i.JobID,
		&i.EventType,
		&i.Attempt,
		&i.Message,
		&i.Details,
		&i.CreatedAt,
	)
	return i, err
}

const listJobEventsByJobID = `-- name: ListJobEventsByJobID :many
SELECT id, job_id, event_type, attempt, message, details, created_at
FROM media_job_event
WHERE job_id = $1
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListJobEventsByJobID(ctx context.Context, jobID string) ([]MediaJobEvent, error) {
	rows, err := q.db.Query(ctx, listJobEventsByJobID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MediaJobEvent
	for rows.Next() {
		var i MediaJobEvent
		if err := rows.Scan(
			&i.ID,
			&i.JobID,
			&i.EventType,
			&i.Attempt,
			&i.Message,
			&i.Details,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
