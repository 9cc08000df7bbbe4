// Package status keeps the externally visible state of every render job.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/samber/mo"
)

// ErrNotFound is returned by Get when no record exists for the job id
var ErrNotFound = errors.New("job status not found")

// PersistenceError reports a failed read or write against the backing store
type PersistenceError struct {
	Op    string
	JobID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("status %s %s: %v", e.Op, e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is a last-write-wins mapping from job id to status
type Store interface {
	// Upsert writes the record, stamping UpdatedAt when it is zero
	Upsert(ctx context.Context, st models.JobStatus) error
	// Get returns the latest record or ErrNotFound
	Get(ctx context.Context, jobID string) (models.JobStatus, error)
}

// Lister is implemented by stores that can page through records
type Lister interface {
	List(ctx context.Context, state mo.Option[models.JobState], limit, offset int) ([]models.JobStatus, int64, error)
}

func stamp(st models.JobStatus) models.JobStatus {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return st
}

func persistenceError(op, jobID string, err error) error {
	return &PersistenceError{Op: op, JobID: jobID, Err: err}
}
