package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bookpost/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	_, client := newTestRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "posting:rate:tenant:t1", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := bucket.Allow(ctx, "posting:rate:tenant:t1", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// other tenants have their own bucket
	res, err = bucket.Allow(ctx, "posting:rate:tenant:t2", 0.001, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	_, client := newTestRedis(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 1, 0)
	assert.Error(t, err)

	var nilBucket *TokenBucket
	_, err = nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}

func TestRedisLockerSingleHolder(t *testing.T) {
	srv, client := newTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "posting:inflight:t1:h", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "posting:inflight:t1:h", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token never releases someone else's lock
	require.NoError(t, locker.Release(ctx, "posting:inflight:t1:h", "not-mine"))
	assert.True(t, srv.Exists("posting:inflight:t1:h"))

	require.NoError(t, locker.Release(ctx, "posting:inflight:t1:h", token))
	assert.False(t, srv.Exists("posting:inflight:t1:h"))
}

func TestRedisLockerExpires(t *testing.T) {
	srv, client := newTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerConcurrentSingleWinner(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := locker.TryLock(ctx, "k", time.Minute)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLocalLockerExpiryAndRelease(t *testing.T) {
	now := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "other"))
	_, ok, _ = locker.TryLock(ctx, "k", time.Second)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", token))
	_, ok, _ = locker.TryLock(ctx, "k", time.Second)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = locker.TryLock(ctx, "k", time.Second)
	assert.True(t, ok)
}

func TestLocalLockerSweepsExpiredKeys(t *testing.T) {
	now := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, ok, err := locker.TryLock(ctx, fmt.Sprintf("posting:inflight:t1:h%d", i), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Len(t, locker.locks, 50)

	now = now.Add(localSweepInterval)
	_, ok, err := locker.TryLock(ctx, "posting:inflight:t1:fresh", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, locker.locks, 1)
}

func TestPostingLimiterWithoutRedis(t *testing.T) {
	limiter, err := NewPostingLimiter(config.Config{}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, limiter.RateLimitEnabled())

	res, err := limiter.AllowTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLockPayload(context.Background(), "t1", "h")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, _ = limiter.TryLockPayload(context.Background(), "t1", "h")
	assert.False(t, ok)
	require.NoError(t, limiter.ReleasePayload(context.Background(), "t1", "h", token))
}

func TestPostingLimiterRequiresRedisForRateLimit(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, PostingRate: 1, PostingBurst: 1}}
	_, err := NewPostingLimiter(cfg, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrRateLimitRequiresRedis)
}

func TestPostingLimiterWithRedis(t *testing.T) {
	srv, client := newTestRedis(t)
	cfg := config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, PostingRate: 0.001, PostingBurst: 1},
		Posting:   config.PostingConfig{InFlightLockTTL: 5 * time.Second},
	}
	limiter, err := NewPostingLimiter(cfg, client, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := limiter.AllowTenant(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = limiter.AllowTenant(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	_, ok, err := limiter.TryLockPayload(ctx, "t1", "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, srv.Exists("posting:inflight:t1:abc"))
	assert.Equal(t, 5*time.Second, srv.TTL("posting:inflight:t1:abc"))
}
