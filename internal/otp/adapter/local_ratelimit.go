package adapter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/otp/app"
)

var _ app.RateLimiter = (*LocalRateLimiter)(nil)

// pruneThreshold is the number of tracked keys above which idle limiters are
// dropped on the next check.
const pruneThreshold = 10000

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

// LocalRateLimiter is a per-process token bucket per key. A bucket holds
// limit tokens and refills one every window/limit, so a burst of limit hits
// is allowed and the long-run rate is limit per window.
type LocalRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	clock   domain.Clock
}

// NewLocalRateLimiter creates an empty LocalRateLimiter.
func NewLocalRateLimiter(clock domain.Clock) *LocalRateLimiter {
	return &LocalRateLimiter{
		buckets: make(map[string]*localBucket),
		clock:   clock,
	}
}

// CheckAndIncrement takes a token from key's bucket. It never returns an
// error. The bucket shape is fixed by the first call for a key.
func (l *LocalRateLimiter) CheckAndIncrement(_ context.Context, key string, limit, windowSeconds int) (bool, error) {
	if limit <= 0 || windowSeconds <= 0 {
		return true, nil
	}

	now := l.clock.Now()
	window := time.Duration(windowSeconds) * time.Second

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > pruneThreshold {
		l.pruneLocked(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		every := window / time.Duration(limit)
		b = &localBucket{
			limiter: rate.NewLimiter(rate.Every(every), limit),
			window:  window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys.
func (l *LocalRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// pruneLocked drops buckets idle for a full window; such a bucket has
// refilled completely, so forgetting it changes no decision.
func (l *LocalRateLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= b.window {
			delete(l.buckets, key)
		}
	}
}
