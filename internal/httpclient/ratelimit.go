package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultMinRateToSleep is the remaining-quota floor below which
	// the client rotates credentials or sleeps.
	DefaultMinRateToSleep = 10

	// MaxMinRateToSleep caps --min-rate-to-sleep. Higher values might
	// make the client sleep forever.
	MaxMinRateToSleep = 500

	// HeaderRateRemaining is the default remaining-quota header.
	HeaderRateRemaining = "X-RateLimit-Remaining"

	// HeaderRateReset is the default reset header (Unix seconds).
	HeaderRateReset = "X-RateLimit-Reset"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

// quota is the last quota snapshot seen for one credential context.
// remaining == -1 means the provider exposed no quota information.
type quota struct {
	remaining int
	resetAt   time.Time
}

func newQuota() quota {
	return quota{remaining: -1}
}

// exhausted reports whether the context is at or below the sleep floor.
func (q quota) exhausted(minRate int) bool {
	return q.remaining >= 0 && q.remaining <= minRate
}

// sleepFor computes how long to wait for the quota to reset. Never
// negative.
func (q quota) sleepFor(now time.Time) time.Duration {
	d := q.resetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// updateFrom refreshes the snapshot from response headers. Headers the
// provider does not send leave the previous values untouched, except
// that a missing remaining header clears quota tracking.
func (q *quota) updateFrom(h http.Header, remainingHeader, resetHeader string) {
	if v := h.Get(remainingHeader); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.remaining = n
		}
	} else {
		q.remaining = -1
	}

	if v := h.Get(resetHeader); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			q.resetAt = time.Unix(ts, 0)
		}
	}

	// Retry-After wins over the reset header when both are present.
	if v := h.Get(HeaderRetryAfter); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			q.resetAt = time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
}
