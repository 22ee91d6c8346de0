package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GuardrailResult is the outcome of a guardrail check.
type GuardrailResult struct {
	Allowed bool
	Warning string
}

// Guardrails decide whether a request may run.
type Guardrails interface {
	Check(ctx context.Context, key string) (*GuardrailResult, error)
	RecordSuccess(ctx context.Context, key string)
}

// RateLimiter limits messages per thread with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute messages per thread with the given
// burst. Limiters idle for ten minutes are dropped.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (r *RateLimiter) Check(ctx context.Context, key string) (*GuardrailResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.limiters {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.limiters, k)
		}
	}
	e, ok := r.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	if !e.limiter.AllowN(now, 1) {
		return &GuardrailResult{
			Allowed: false,
			Warning: fmt.Sprintf("rate limit of %.0f messages per minute reached", float64(r.limit)*60),
		}, nil
	}
	return &GuardrailResult{Allowed: true}, nil
}

func (r *RateLimiter) RecordSuccess(ctx context.Context, key string) {}
