package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Quota counts requests per scope and client in fixed windows kept in Redis,
// so every instance shares the same counters.
type Quota struct {
	redis  redis.Cmdable
	window time.Duration
	prefix string
}

func NewQuota(client redis.Cmdable, window time.Duration) *Quota {
	if window <= 0 {
		window = time.Minute
	}
	return &Quota{redis: client, window: window, prefix: "quota"}
}

// Allow counts one request for client in scope and reports whether it fits in limit.
// A limit of zero or less always allows.
func (q *Quota) Allow(ctx context.Context, scope, client string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit}, nil
	}
	key := fmt.Sprintf("%s:%s:%s", q.prefix, scope, client)

	n, err := q.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("quota %s: %w", key, err)
	}
	if n == 1 {
		if err := q.redis.Expire(ctx, key, q.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("quota %s expire: %w", key, err)
		}
	}
	ttl, err := q.redis.PTTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("quota %s ttl: %w", key, err)
	}
	if ttl < 0 {
		// a counter without expiry would block the client forever
		if err := q.redis.Expire(ctx, key, q.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("quota %s expire: %w", key, err)
		}
		ttl = q.window
	}

	d := Decision{Count: n, Limit: limit}
	d.Allowed = n <= int64(limit)
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}
