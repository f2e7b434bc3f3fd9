// Package ratelimit implements the per-identity request limiter applied to
// the authenticated API surface: a fixed window of requests per principal,
// backed by atomic Redis counters so limiter state is shared across every
// process serving the tenant's traffic.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per identity within a fixed window using
// Redis INCR + EXPIRE, the same atomic-counter idiom the teacher uses for
// login-attempt throttling.
type Limiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// New creates a limiter allowing max requests per identity within window.
func New(rdb *redis.Client, max int, window time.Duration) *Limiter {
	return &Limiter{redis: rdb, max: max, window: window}
}

// Result reports the outcome of a Check/Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Allow increments the counter for identity and reports whether the request
// is within the window's quota. Unlike a separate Check+Record pair, this
// increments unconditionally so the window fills on every call, which is the
// correct behavior for a request-rate limiter (as opposed to the teacher's
// failed-login limiter, which only records on failure).
func (l *Limiter) Allow(ctx context.Context, identity string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:%s", identity)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	count := incr.Val()
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return nil, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	retryAt := time.Now().Add(l.window)
	if d := ttl.Val(); d > 0 {
		retryAt = time.Now().Add(d)
	}

	if int(count) > l.max {
		return &Result{Allowed: false, Remaining: 0, RetryAt: retryAt}, nil
	}

	return &Result{
		Allowed:   true,
		Remaining: l.max - int(count),
		RetryAt:   retryAt,
	}, nil
}
