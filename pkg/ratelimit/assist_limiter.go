// Package ratelimit provides per-key request limiters.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// =============================================================================
// LocalLimiter - in-process fixed window
// =============================================================================

// LocalLimiter counts requests per key in fixed windows. It only sees the
// traffic of one process.
type LocalLimiter struct {
	requests map[string]*window
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

type window struct {
	count     int
	expiresAt time.Time
}

func NewLocalLimiter(limit int, w time.Duration) *LocalLimiter {
	return &LocalLimiter{
		requests: make(map[string]*window),
		limit:    limit,
		window:   w,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	info, ok := l.requests[key]
	if !ok || !now.Before(info.expiresAt) {
		info = &window{expiresAt: now.Add(l.window)}
		l.requests[key] = info
	}

	if info.count >= l.limit {
		return Decision{Limit: l.limit, RetryAfter: info.expiresAt.Sub(now)}
	}
	info.count++
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - info.count}
}

// Cleanup drops expired windows. Call it periodically.
func (l *LocalLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, info := range l.requests {
		if !now.Before(info.expiresAt) {
			delete(l.requests, key)
		}
	}
}

// Len reports the number of tracked keys.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// =============================================================================
// SlidingWindowLimiter - Redis sorted set per key
// =============================================================================

// Returns {allowed, count, wait_ms}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, ARGV[4])
		redis.call('PEXPIRE', key, window_ms)
		return {1, count + 1, 0}
	end

	local wait = window_ms
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		wait = tonumber(oldest[2]) + window_ms - now
	end
	return {0, count, wait}
`)

// SlidingWindowLimiter shares limits across API instances through Redis.
// When Redis fails it defers to fallback, or allows the request if there
// is none.
type SlidingWindowLimiter struct {
	redis    *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	fallback Limiter
}

func NewSlidingWindowLimiter(client *redis.Client, limit int, w time.Duration, fallback Limiter) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:    client,
		limit:    limit,
		window:   w,
		prefix:   "ratelimit:",
		fallback: fallback,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l.redis == nil {
		return l.degraded(ctx, key)
	}

	now := time.Now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.redis, []string{l.prefix + key},
		now,
		l.window.Milliseconds(),
		l.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		return l.degraded(ctx, key)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Limit: l.limit, Remaining: max(l.limit-int(res[1]), 0)}
	}
	return Decision{Limit: l.limit, RetryAfter: time.Duration(res[2]) * time.Millisecond}
}

func (l *SlidingWindowLimiter) degraded(ctx context.Context, key string) Decision {
	if l.fallback != nil {
		return l.fallback.Allow(ctx, key)
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
}
