// Package ratelimit bounds request volume on the public form endpoints with a
// sliding window counter held in Redis (go-redis + redis_rate), so the limit
// holds across multiple service instances.
//
// The limiter deliberately FAILS OPEN: if Redis is unreachable or the check
// times out, the request is allowed. Losing throttling briefly is acceptable;
// locking every prospect out of the form because a cache is down is not. This
// is the opposite policy from token verification in internal/auth, which fails
// closed — keep the asymmetry when touching either.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/formgate/formgate/internal/telemetry"
)

// checkTimeout bounds each Redis round trip so a hung backend degrades to
// fail-open instead of stalling the request.
const checkTimeout = 500 * time.Millisecond

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Checker is the interface the middleware consumes; tests substitute stubs.
type Checker interface {
	Check(ctx context.Context, key string) Decision
}

// Limiter enforces a sliding window of Requests per Window per key.
type Limiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// New creates a Limiter allowing requests per window for each key.
func New(rdb *redis.Client, requests int, window time.Duration) *Limiter {
	return &Limiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   requests,
			Burst:  requests,
			Period: window,
		},
	}
}

// Check consumes one slot for key and reports whether the request is within
// the window. Backend errors are absorbed and reported as allowed.
func (l *Limiter) Check(ctx context.Context, key string) Decision {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	res, err := l.limiter.Allow(ctx, key, l.limit)
	if err != nil {
		// Fail open: availability of the form wins over strict throttling.
		slog.Warn("rate limit backend unavailable, allowing request", "key", key, "error", err)
		telemetry.RateLimitDecisionsTotal.WithLabelValues("fail_open").Inc()
		return Decision{Allowed: true, Limit: l.limit.Rate, Remaining: l.limit.Rate}
	}

	d := Decision{
		Allowed:   res.Allowed > 0,
		Limit:     l.limit.Rate,
		Remaining: res.Remaining,
		ResetAt:   time.Now().Add(res.ResetAfter),
	}

	if d.Allowed {
		telemetry.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
	} else {
		telemetry.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
	}

	return d
}
