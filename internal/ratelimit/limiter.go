// Package ratelimit throttles login attempts per remote address using a
// fixed window. Redis is used when configured, an in-process cache otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Redis is a fixed window limiter (INCR + EXPIRE).
type Redis struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string, max int, window time.Duration) *Redis {
	if prefix == "" {
		prefix = "rl:"
	}
	return &Redis{client: client, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

func (l *Redis) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// set expiry on first hit
	window := ttl.Val()
	if incr.Val() == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Result{}, err
		}
		window = l.window
	}
	return result(incr.Val(), l.max, window, l.window), nil
}

// Memory is the single-process fallback.
type Memory struct {
	mu     sync.Mutex
	cache  *gocache.Cache
	max    int64
	window time.Duration
}

func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{cache: gocache.New(window, 2*window), max: int64(max), window: window}
}

type bucket struct {
	hits    int64
	expires time.Time
}

func (l *Memory) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b := &bucket{expires: now.Add(l.window)}
	if v, ok := l.cache.Get(key); ok {
		b = v.(*bucket)
	}
	b.hits++
	l.cache.Set(key, b, time.Until(b.expires))
	return result(b.hits, l.max, time.Until(b.expires), l.window), nil
}

func result(hits, max int64, ttl, window time.Duration) Result {
	res := Result{Allowed: hits <= max, Remaining: max - hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = window
		}
	}
	return res
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Result, error) { return Result{Allowed: true}, nil }
