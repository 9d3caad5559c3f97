package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scribe/internal/services"
)

// Preset bounds a retry loop. Delays grow exponentially from InitialDelay up
// to MaxDelay with ±50% jitter.
type Preset struct {
	Name         string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var (
	// APIRetry covers metered HTTP APIs where aggressive retries are wasteful.
	APIRetry = Preset{Name: "api", MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	// IORetry covers local filesystem operations that rarely recover slowly.
	IORetry = Preset{Name: "io", MaxAttempts: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	// NetworkRetry covers flaky transports worth more patience.
	NetworkRetry = Preset{Name: "network", MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 60 * time.Second}
)

// HTTPStatus is implemented by errors that carry an HTTP response code.
type HTTPStatus interface {
	HTTPStatus() int
}

// RetryAfterHinter is implemented by errors that carry a server-provided
// Retry-After delay.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// Do runs op until it succeeds, exhausts the preset's attempts, or hits a
// non-retryable error. A Retry-After hint on the error overrides the computed
// backoff delay, capped at the preset maximum.
func Do(ctx context.Context, preset Preset, op func() error) error {
	if preset.MaxAttempts <= 0 {
		preset.MaxAttempts = 1
	}

	delays := newBackoff(preset)
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= preset.MaxAttempts {
			return err
		}
		if !Retryable(err) {
			return err
		}

		delay := delays.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		if hint := retryAfterHint(err); hint > 0 {
			delay = hint
			if preset.MaxDelay > 0 && delay > preset.MaxDelay {
				delay = preset.MaxDelay
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func newBackoff(preset Preset) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = preset.InitialDelay
	b.MaxInterval = preset.MaxDelay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Retryable classifies an error as worth retrying. Rate limits, timeouts,
// connection failures, and server errors retry; everything else fails fast.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr HTTPStatus
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatus()
		switch {
		case code == 408, code == 429:
			return true
		case code >= 500:
			return true
		default:
			return false
		}
	}

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		switch {
		case errors.Is(err, services.ErrNetwork),
			errors.Is(err, services.ErrTimeout),
			errors.Is(err, services.ErrTransient):
			return true
		case errors.Is(err, services.ErrConfiguration),
			errors.Is(err, services.ErrValidation),
			errors.Is(err, services.ErrNotFound):
			return false
		}
		if svcErr.Cause != nil {
			return Retryable(svcErr.Cause)
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"timed out",
		"timeout",
		"connection reset",
		"connection refused",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func retryAfterHint(err error) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		return hinter.RetryAfterHint()
	}
	return 0
}
