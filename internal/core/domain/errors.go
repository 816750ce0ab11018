package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent failures of the engine's own contracts.
// Infrastructure errors are wrapped around them with %w.
var (
	// ErrInvalidWindow indicates to_date precedes from_date.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrInvalidItem indicates an adapter produced an item the engine
	// cannot derive metadata from.
	ErrInvalidItem = errors.New("invalid item")

	// ErrInvalidCategory indicates a category the backend does not produce.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrUnknownBackend indicates a backend name with no registered factory.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrOutOfOrder indicates an adapter yielded items with decreasing
	// updated_on, breaking the ordering guarantee it owns.
	ErrOutOfOrder = errors.New("items out of order")

	// ErrParse indicates an adapter could not decode a payload.
	ErrParse = errors.New("parse error")

	// ErrRunInProgress indicates a fetch run is already active on this
	// orchestrator.
	ErrRunInProgress = errors.New("fetch run in progress")

	// ErrReplayUnsupported indicates replay was requested for a
	// backend without archiving support.
	ErrReplayUnsupported = errors.New("backend does not support archiving")

	// Authentication errors. Never retried.

	// ErrAuthentication indicates the credentials were rejected.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound indicates the requested remote resource does not exist.
	ErrNotFound = errors.New("not found")

	// Archive errors.

	// ErrArchiveUnavailable indicates the archive location cannot be
	// opened for reading or writing.
	ErrArchiveUnavailable = errors.New("archive unavailable")

	// ErrArchiveWrite indicates an append to the archive failed. The
	// current fetch run must abort: archiving is required when enabled.
	ErrArchiveWrite = errors.New("archive write failed")

	// ErrUnbalancedScope indicates a BEGIN marker without its matching
	// END, or vice versa. A programming error in an adapter.
	ErrUnbalancedScope = errors.New("unbalanced archive scope")

	// ErrArchiveExhausted indicates a replay asked for more responses
	// than the archive holds.
	ErrArchiveExhausted = errors.New("archive exhausted")
)

// RateLimitError reports quota exhaustion when sleeping was not
// enabled. SleepFor is how long the caller would have to wait for the
// quota to reset.
type RateLimitError struct {
	SleepFor  time.Duration
	ResetAt   time.Time
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exhausted, reset in %s", e.SleepFor)
}

// RetryExhaustedError reports that a request kept failing transiently
// past the configured retry budget. Last holds the final attempt's error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// IsRateLimited reports whether err is a RateLimitError.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsRetryExhausted reports whether err is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var ree *RetryExhaustedError
	return errors.As(err, &ree)
}

// IsFatal reports whether err must never be retried: bad credentials,
// missing resources, malformed adapter output or broken archives.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrArchiveWrite) ||
		errors.Is(err, ErrUnbalancedScope)
}
