package gdrive

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultBurst caps request bursts well below Google's 10/sec/user limit.
const defaultBurst = 10

// rateLimiter wraps a token bucket with a retry-at gate for 429 responses.
type rateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

func newRateLimiter(requestsPerSecond float64) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8.0
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), defaultBurst),
	}
}

// wait blocks until a request may proceed, honoring any backoff recorded
// from a previous 429.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}
	return r.limiter.Wait(ctx)
}

// recordRateLimit records a 429 and gates requests until the server's
// suggested retry time.
func (r *rateLimiter) recordRateLimit(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = 60 * time.Second
	}
	r.mu.Lock()
	r.retryAt = time.Now().Add(retryAfter)
	r.mu.Unlock()
}
