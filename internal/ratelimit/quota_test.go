package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuota(t *testing.T) (*Quota, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQuota(client, time.Minute), mr
}

func TestQuota_FixedWindow(t *testing.T) {
	q, mr := newTestQuota(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := q.Allow(ctx, "issue", "10.0.0.1", 3)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, int64(i), d.Count)
	}

	d, err := q.Allow(ctx, "issue", "10.0.0.1", 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	// other clients and scopes have their own counters
	d, err = q.Allow(ctx, "issue", "10.0.0.2", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = q.Allow(ctx, "verify", "10.0.0.1", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	assert.Equal(t, "4", mustGet(t, mr, "quota:issue:10.0.0.1"))

	mr.FastForward(time.Minute + time.Second)
	d, err = q.Allow(ctx, "issue", "10.0.0.1", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestQuota_RepairsMissingExpiry(t *testing.T) {
	q, mr := newTestQuota(t)
	require.NoError(t, mr.Set("quota:issue:10.0.0.9", "7"))

	d, err := q.Allow(context.Background(), "issue", "10.0.0.9", 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
	assert.Equal(t, time.Minute, mr.TTL("quota:issue:10.0.0.9"))
}

func TestQuota_DisabledLimit(t *testing.T) {
	q, mr := newTestQuota(t)

	d, err := q.Allow(context.Background(), "issue", "10.0.0.1", 0)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, mr.Exists("quota:issue:10.0.0.1"))
}

func TestQuota_RedisDown(t *testing.T) {
	q, mr := newTestQuota(t)
	mr.Close()

	_, err := q.Allow(context.Background(), "issue", "10.0.0.1", 1)
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
