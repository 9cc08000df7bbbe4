package work

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/redis"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	leaseKeyPrefix = "media:lease:"
	// DefaultLeaseTTL bounds how long a lease survives a worker that died
	// without releasing it. Holders extend it while they work.
	DefaultLeaseTTL = 45 * time.Minute
)

// only the holder may extend or drop a lease
var (
	releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// LeaseManager records which process currently works on a job id so that
// several worker processes do not run the same job at the same time.
type LeaseManager struct {
	redis *redis.RedisClient
	owner string
	ttl   time.Duration
}

// NewLeaseManager creates a lease manager. owner identifies this process.
func NewLeaseManager(client *redis.RedisClient, owner string, ttl time.Duration) *LeaseManager {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &LeaseManager{
		redis: client,
		owner: owner,
		ttl:   ttl,
	}
}

func (lm *LeaseManager) key(jobID string) string {
	return fmt.Sprintf("%s%s", leaseKeyPrefix, jobID)
}

// Owner returns the identity written into held leases
func (lm *LeaseManager) Owner() string {
	return lm.owner
}

// Claim takes the lease for jobID. It returns false when another owner holds it.
func (lm *LeaseManager) Claim(ctx context.Context, jobID string) (bool, error) {
	ok, err := lm.redis.SetNX(ctx, lm.key(jobID), lm.owner, lm.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim lease for %s: %w", jobID, err)
	}
	if !ok {
		log.Debug().Str("jobID", jobID).Msg("Lease held by another worker")
	}
	return ok, nil
}

// Extend pushes the lease expiry forward. It returns false if the lease was
// lost (expired or taken by someone else).
func (lm *LeaseManager) Extend(ctx context.Context, jobID string) (bool, error) {
	res, err := lm.redis.RunScript(ctx, extendScript, []string{lm.key(jobID)}, lm.owner, lm.ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to extend lease for %s: %w", jobID, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// Release drops the lease if this process still holds it
func (lm *LeaseManager) Release(ctx context.Context, jobID string) error {
	if _, err := lm.redis.RunScript(ctx, releaseScript, []string{lm.key(jobID)}, lm.owner); err != nil {
		return fmt.Errorf("failed to release lease for %s: %w", jobID, err)
	}
	return nil
}

// Holder returns the owner of the lease for jobID, or "" when unheld
func (lm *LeaseManager) Holder(ctx context.Context, jobID string) (string, error) {
	owner, err := lm.redis.Get(ctx, lm.key(jobID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read lease for %s: %w", jobID, err)
	}
	return owner, nil
}

// ListLeased returns every job id that currently has a lease.
// It uses SCAN to avoid blocking the Redis server.
func (lm *LeaseManager) ListLeased(ctx context.Context) ([]string, error) {
	var jobIDs []string
	pattern := fmt.Sprintf("%s*", leaseKeyPrefix)

	iter := lm.redis.GetClient().Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		jobIDs = append(jobIDs, strings.TrimPrefix(iter.Val(), leaseKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan leases in Redis: %w", err)
	}

	return jobIDs, nil
}
