package work

import (
	"context"
	"testing"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/redis"
	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewFromClient(client)
}

func TestLeaseClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	a := NewLeaseManager(client, "worker-a", time.Minute)
	b := NewLeaseManager(client, "worker-b", time.Minute)

	ok, err := a.Claim(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("Expected first claim to succeed, got %v %v", ok, err)
	}
	ok, err = b.Claim(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Second owner claimed a held lease")
	}

	holder, err := b.Holder(ctx, "job-1")
	if err != nil || holder != "worker-a" {
		t.Errorf("Expected worker-a, got %q %v", holder, err)
	}
}

func TestLeaseReleaseOnlyByHolder(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	a := NewLeaseManager(client, "worker-a", time.Minute)
	b := NewLeaseManager(client, "worker-b", time.Minute)

	if ok, _ := a.Claim(ctx, "job-1"); !ok {
		t.Fatal("Expected claim")
	}
	if err := b.Release(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if holder, _ := a.Holder(ctx, "job-1"); holder != "worker-a" {
		t.Error("Lease dropped by a non-holder")
	}

	if err := a.Release(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := b.Claim(ctx, "job-1"); !ok {
		t.Error("Released lease could not be claimed")
	}
}

func TestLeaseExpiresAndExtends(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	a := NewLeaseManager(client, "worker-a", time.Minute)
	if ok, _ := a.Claim(ctx, "job-1"); !ok {
		t.Fatal("Expected claim")
	}

	mr.FastForward(40 * time.Second)
	ok, err := a.Extend(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("Expected extend to succeed, got %v %v", ok, err)
	}
	mr.FastForward(40 * time.Second)
	if holder, _ := a.Holder(ctx, "job-1"); holder != "worker-a" {
		t.Error("Extended lease expired early")
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := a.Extend(ctx, "job-1"); ok {
		t.Error("Extended an expired lease")
	}
}

func TestListLeased(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	lm := NewLeaseManager(client, "worker-a", 0)

	for _, id := range []string{"a", "b", "c"} {
		if ok, _ := lm.Claim(ctx, id); !ok {
			t.Fatalf("claim %s failed", id)
		}
	}

	ids, err := lm.ListLeased(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Errorf("Expected 3 leases, got %v", ids)
	}
}
