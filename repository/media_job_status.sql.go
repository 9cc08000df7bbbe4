package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const countJobStatuses = `-- name: CountJobStatuses :one
SELECT count(*)
FROM media_job_status
WHERE ($1::text IS NULL OR state = $1::text)
`

func (q *Queries) CountJobStatuses(ctx context.Context, state pgtype.Text) (int64, error) {
	row := q.db.QueryRow(ctx, countJobStatuses, state)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getJobStatus = `-- name: GetJobStatus :one
SELECT job_id, state, progress, result, created_at, updated_at
FROM media_job_status
WHERE job_id = $1
`

func (q *Queries) GetJobStatus(ctx context.Context, jobID string) (MediaJobStatus, error) {
	row := q.db.QueryRow(ctx, getJobStatus, jobID)
	var i MediaJobStatus
	err := row.Scan(
		&i.JobID,
		&i.State,
		&i.Progress,
		&i.Result,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listJobStatuses = `-- name: ListJobStatuses :many
SELECT job_id, state, progress, result, created_at, updated_at
FROM media_job_status
WHERE ($1::text IS NULL OR state = $1::text)
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`

type ListJobStatusesParams struct {
	State  pgtype.Text `json:"state"`
	Limit  int32       `json:"limit"`
	Offset int32       `json:"offset"`
}

func (q *Queries) ListJobStatuses(ctx context.Context, arg ListJobStatusesParams) ([]MediaJobStatus, error) {
	rows, err := q.db.Query(ctx, listJobStatuses, arg.State, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MediaJobStatus
	for rows.Next() {
		var i MediaJobStatus
		if err := rows.Scan(
			&i.JobID,
			&i.State,
			&i.Progress,
			&i.Result,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const upsertJobStatus = `-- name: UpsertJobStatus :one
INSERT INTO media_job_status (job_id, state, progress, result, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id) DO UPDATE
SET state = EXCLUDED.state,
    progress = EXCLUDED.progress,
    result = EXCLUDED.result,
    updated_at = EXCLUDED.updated_at
RETURNING job_id, state, progress, result, created_at, updated_at
`

type UpsertJobStatusParams struct {
	JobID     string             `json:"job_id"`
	State     string             `json:"state"`
	Progress  int32              `json:"progress"`
	Result    []byte             `json:"result"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

func (q *Queries) UpsertJobStatus(ctx context.Context, arg UpsertJobStatusParams) (MediaJobStatus, error) {
	row := q.db.QueryRow(ctx, upsertJobStatus,
		arg.JobID,
		arg.State,
		arg.Progress,
		arg.Result,
		arg.UpdatedAt,
	)
	var i MediaJobStatus
	err := row.Scan(
		&i.JobID,
		&i.State,
		&i.Progress,
		&i.Result,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
