package status

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// PostgresStore keeps status records in the media_job_status table
type PostgresStore struct {
	q *repository.Queries
}

func NewPostgresStore(q *repository.Queries) *PostgresStore {
	return &PostgresStore{q: q}
}

func (s *PostgresStore) Upsert(ctx context.Context, st models.JobStatus) error {
	st = stamp(st)

	var result []byte
	if len(st.Result) > 0 {
		result = st.Result
	}

	_, err := s.q.UpsertJobStatus(ctx, repository.UpsertJobStatusParams{
		JobID:     st.JobID,
		State:     string(st.State),
		Progress:  int32(st.Progress),
		Result:    result,
		UpdatedAt: pgtype.Timestamptz{Time: st.UpdatedAt, Valid: true},
	})
	if err != nil {
		return persistenceError("upsert", st.JobID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (models.JobStatus, error) {
	row, err := s.q.GetJobStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.JobStatus{}, ErrNotFound
		}
		return models.JobStatus{}, persistenceError("get", jobID, err)
	}
	return fromRow(row), nil
}

// List pages through statuses, newest first, optionally filtered by state
func (s *PostgresStore) List(ctx context.Context, state mo.Option[models.JobState], limit, offset int) ([]models.JobStatus, int64, error) {
	filter := pgtype.Text{}
	if v, ok := state.Get(); ok {
		filter = pgtype.Text{String: string(v), Valid: true}
	}

	rows, err := s.q.ListJobStatuses(ctx, repository.ListJobStatusesParams{
		State:  filter,
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return nil, 0, persistenceError("list", "", err)
	}

	total, err := s.q.CountJobStatuses(ctx, filter)
	if err != nil {
		return nil, 0, persistenceError("count", "", err)
	}

	return lo.Map(rows, func(r repository.MediaJobStatus, _ int) models.JobStatus {
		return fromRow(r)
	}), total, nil
}

func fromRow(r repository.MediaJobStatus) models.JobStatus {
	st := models.JobStatus{
		JobID:    r.JobID,
		State:    models.JobState(r.State),
		Progress: int(r.Progress),
	}
	if len(r.Result) > 0 {
		st.Result = json.RawMessage(r.Result)
	}
	if r.UpdatedAt.Valid {
		st.UpdatedAt = r.UpdatedAt.Time.UTC()
	}
	return st
}
