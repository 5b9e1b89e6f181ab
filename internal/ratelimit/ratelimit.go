// Package ratelimit paces outgoing invocations with an in-memory token
// bucket per key (usually the function name).
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TierConfig holds the rate for one bucket
type TierConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Limiter is a set of local token buckets sharing one configuration.
// It is safe for concurrent use.
type Limiter struct {
	cfg TierConfig

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// New creates a limiter. A non-positive rate disables limiting.
func New(cfg TierConfig) *Limiter {
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until one more token is available.
	RetryAfter time.Duration
}

// Allow takes one token for key if one is available.
func (l *Limiter) Allow(key string) Result {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens for key if they are all available.
func (l *Limiter) AllowN(key string, n int) Result {
	if l.cfg.RequestsPerSecond <= 0 {
		return Result{Allowed: true, Remaining: l.cfg.BurstSize}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.BurstSize), lastRefill: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(l.cfg.BurstSize), b.tokens+elapsed*l.cfg.RequestsPerSecond)
		b.lastRefill = now
	}

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return Result{Allowed: true, Remaining: int(b.tokens)}
	}
	missing := float64(n) - b.tokens
	return Result{
		Allowed:    false,
		Remaining:  int(b.tokens),
		RetryAfter: time.Duration(missing / l.cfg.RequestsPerSecond * float64(time.Second)),
	}
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		res := l.Allow(key)
		if res.Allowed {
			return nil
		}
		timer := time.NewTimer(res.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
