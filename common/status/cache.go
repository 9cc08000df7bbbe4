package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/models"
	"github.com/LexiconIndonesia/media-render-service/common/redis"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

const cacheKeyPrefix = "media:status:"

// CachedStore puts Redis in front of another store. Writes go to the inner
// store first and are cached only once they succeed. Every cache entry has
// a TTL: terminal records are immutable, so a short retention is safe.
// The cache is an optimization; its failures never fail a call.
type CachedStore struct {
	inner       Store
	redis       *redis.RedisClient
	terminalTTL time.Duration
	activeTTL   time.Duration
}

func NewCachedStore(inner Store, client *redis.RedisClient, terminalTTL, activeTTL time.Duration) *CachedStore {
	return &CachedStore{
		inner:       inner,
		redis:       client,
		terminalTTL: terminalTTL,
		activeTTL:   activeTTL,
	}
}

func (s *CachedStore) key(jobID string) string {
	return fmt.Sprintf("%s%s", cacheKeyPrefix, jobID)
}

func (s *CachedStore) ttl(state models.JobState) time.Duration {
	if state.IsTerminal() {
		return s.terminalTTL
	}
	return s.activeTTL
}

func (s *CachedStore) Upsert(ctx context.Context, st models.JobStatus) error {
	st = stamp(st)
	if err := s.inner.Upsert(ctx, st); err != nil {
		// drop the cached copy so reads fall through to the store
		if derr := s.redis.Delete(ctx, s.key(st.JobID)); derr != nil {
			log.Debug().Err(derr).Str("jobID", st.JobID).Msg("Failed to evict status cache entry")
		}
		return err
	}
	s.store(ctx, st)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, jobID string) (models.JobStatus, error) {
	if st, ok := s.lookup(ctx, jobID).Get(); ok {
		return st, nil
	}

	st, err := s.inner.Get(ctx, jobID)
	if err != nil {
		return models.JobStatus{}, err
	}
	s.fill(ctx, st)
	return st, nil
}

// List is served by the inner store when it supports listing
func (s *CachedStore) List(ctx context.Context, state mo.Option[models.JobState], limit, offset int) ([]models.JobStatus, int64, error) {
	lister, ok := s.inner.(Lister)
	if !ok {
		return nil, 0, errors.New("status backend does not support listing")
	}
	return lister.List(ctx, state, limit, offset)
}

func (s *CachedStore) lookup(ctx context.Context, jobID string) mo.Option[models.JobStatus] {
	data, err := s.redis.GetBytes(ctx, s.key(jobID))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("jobID", jobID).Msg("Status cache read failed")
		}
		return mo.None[models.JobStatus]()
	}

	var st models.JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("jobID", jobID).Msg("Discarding undecodable status cache entry")
		return mo.None[models.JobStatus]()
	}
	return mo.Some(st)
}

func (s *CachedStore) store(ctx context.Context, st models.JobStatus) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.key(st.JobID), data, s.ttl(st.State)); err != nil {
		log.Warn().Err(err).Str("jobID", st.JobID).Msg("Status cache write failed")
	}
}

// fill caches a record read from the inner store. It never replaces an entry,
// since a concurrent Upsert may have cached a newer record after the read.
func (s *CachedStore) fill(ctx context.Context, st models.JobStatus) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if _, err := s.redis.SetNX(ctx, s.key(st.JobID), data, s.ttl(st.State)); err != nil {
		log.Warn().Err(err).Str("jobID", st.JobID).Msg("Status cache fill failed")
	}
}
