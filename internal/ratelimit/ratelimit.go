// Package ratelimit provides per-caller request throttling for the REST
// surface. Two backends exist: an in-process token bucket for single
// instances, and a Redis fixed window for deployments with several replicas
// behind one key space.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one request from the given caller key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Unlimited admits everything. Used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) bool { return true }

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory is an in-process per-key token bucket. Idle keys are swept so the
// map does not grow with every caller ever seen.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int

	idleAfter time.Duration
	lastSweep time.Time
}

// NewMemory builds a token-bucket limiter allowing rps requests per second
// with the given burst per key.
func NewMemory(rps float64, burst int) *Memory {
	if burst <= 0 {
		burst = 1
	}
	return &Memory{
		buckets:   make(map[string]*bucket),
		rate:      rate.Limit(rps),
		burst:     burst,
		idleAfter: 5 * time.Minute,
		lastSweep: time.Now(),
	}
}

func (m *Memory) Allow(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastSweep) > m.idleAfter {
		for k, b := range m.buckets {
			if now.Sub(b.lastSeen) > m.idleAfter {
				delete(m.buckets, k)
			}
		}
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// Redis is a fixed-window counter limiter shared across instances. Each key
// gets a counter per window that expires on its own, so a Redis restart only
// ever resets counts downward.
type Redis struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedis builds a Redis-backed limiter allowing limit requests per window
// per key. The redis URL follows the usual redis://[:pass@]host:port/db form.
func NewRedis(url string, limit int64, window time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{
		client: redis.NewClient(opts),
		limit:  limit,
		window: window,
		prefix: "cfpblens:rl:",
	}, nil
}

// Allow fails open: if Redis is unreachable the request is admitted rather
// than turning a cache outage into a full API outage.
func (r *Redis) Allow(ctx context.Context, key string) bool {
	window := time.Now().Unix() / int64(r.window.Seconds())
	counterKey := r.prefix + key + ":" + strconv.FormatInt(window, 10)

	pipe := r.client.TxPipeline()
	count := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	return count.Val() <= r.limit
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error { return r.client.Close() }
