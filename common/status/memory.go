package status

import (
	"context"
	"sort"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/alphadose/haxmap"
	"github.com/samber/mo"
)

// MemoryStore keeps statuses in process memory. Records live as long as the
// process; it backs single-process development setups and tests.
type MemoryStore struct {
	records *haxmap.Map[string, models.JobStatus]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: haxmap.New[string, models.JobStatus]()}
}

func (s *MemoryStore) Upsert(_ context.Context, st models.JobStatus) error {
	st = stamp(st)
	s.records.Set(st.JobID, st)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (models.JobStatus, error) {
	st, ok := s.records.Get(jobID)
	if !ok {
		return models.JobStatus{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) List(_ context.Context, state mo.Option[models.JobState], limit, offset int) ([]models.JobStatus, int64, error) {
	var matched []models.JobStatus
	s.records.ForEach(func(_ string, st models.JobStatus) bool {
		if want, ok := state.Get(); !ok || st.State == want {
			matched = append(matched, st)
		}
		return true
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.JobStatus{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
