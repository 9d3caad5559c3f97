package services

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is a non-2xx HTTP response from an upstream API, carrying the
// server's Retry-After hint when present.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus implements the retry package's status interface.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// RetryAfterHint implements the retry package's hint interface.
func (e *StatusError) RetryAfterHint() time.Duration { return e.RetryAfter }

// ParseRetryAfter interprets a Retry-After header as either delay seconds or
// an HTTP date. Unparseable or absent values yield zero.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0
		}
		return delay
	}
	return 0
}
