// Package ratelimit limits request rates per client key.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucketLimiter keeps one token bucket per key in process memory.
// Buckets idle for longer than idleTTL are evicted.
type TokenBucketLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// RedisLimiter counts requests per key in fixed one-second windows shared by
// every replica.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter allows burst requests per window, or rps when that is
// larger.
func NewRedisLimiter(client *redis.Client, rps float64, burst int) *RedisLimiter {
	limit := int64(math.Ceil(rps))
	if int64(burst) > limit {
		limit = int64(burst)
	}
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		redis:  client,
		limit:  limit,
		window: time.Second,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := r.now().UnixNano() / int64(r.window)
	windowKey := fmt.Sprintf("%s%s:%d", r.prefix, key, slot)

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, 2*r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}
	return incr.Val() <= r.limit, nil
}
