package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"scribe/internal/services"
)

var fastPreset = Preset{Name: "test", MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e statusError) Error() string                 { return fmt.Sprintf("http status %d", e.code) }
func (e statusError) HTTPStatus() int               { return e.code }
func (e statusError) RetryAfterHint() time.Duration { return e.retryAfter }

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPreset, func() error {
		attempts++
		if attempts < 3 {
			return statusError{code: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPreset, func() error {
		attempts++
		return statusError{code: 404}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	wantErr := statusError{code: 500}
	err := Do(context.Background(), fastPreset, func() error {
		attempts++
		return wantErr
	})
	if attempts != fastPreset.MaxAttempts {
		t.Fatalf("attempts = %d, want %d", attempts, fastPreset.MaxAttempts)
	}
	var got statusError
	if !errors.As(err, &got) || got.code != wantErr.code {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Do(ctx, Preset{MaxAttempts: 5, InitialDelay: time.Minute, MaxDelay: time.Minute}, func() error {
		attempts++
		return statusError{code: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDoHonorsRetryAfterHintCap(t *testing.T) {
	attempts := 0
	start := time.Now()
	preset := Preset{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	_ = Do(context.Background(), preset, func() error {
		attempts++
		return statusError{code: 429, retryAfter: time.Hour}
	})
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("hint was not capped at preset maximum, waited %v", elapsed)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"rate limited", statusError{code: 429}, true},
		{"request timeout", statusError{code: 408}, true},
		{"server error", statusError{code: 502}, true},
		{"unauthorized", statusError{code: 401}, false},
		{"forbidden", statusError{code: 403}, false},
		{"not found", statusError{code: 404}, false},
		{"network kind", services.Wrap(services.ErrNetwork, "transcribe", "upload", "connection dropped", nil), true},
		{"timeout kind", services.Wrap(services.ErrTimeout, "convert", "ffmpeg", "stalled", nil), true},
		{"transient kind", services.Wrap(services.ErrTransient, "analyze", "request", "retry later", nil), true},
		{"validation kind", services.Wrap(services.ErrValidation, "validate", "probe", "bad input", nil), false},
		{"configuration kind", services.Wrap(services.ErrConfiguration, "", "load", "missing key", nil), false},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), true},
		{"rate limit text", errors.New("rate limit exceeded"), true},
		{"plain error", errors.New("no such model"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryableUnwrapsServiceCause(t *testing.T) {
	wrapped := services.Wrap(services.ErrTranscription, "transcribe", "chunk", "upstream failed", statusError{code: 503})
	if !Retryable(wrapped) {
		t.Fatal("service error wrapping a retryable cause should retry")
	}
	permanent := services.Wrap(services.ErrTranscription, "transcribe", "chunk", "rejected", statusError{code: 400})
	if Retryable(permanent) {
		t.Fatal("service error wrapping a permanent cause should not retry")
	}
}
