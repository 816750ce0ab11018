package driving

import (
	"context"
	"errors"
	"fmt"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
)

// RunState is the lifecycle state of one fetch run.
type RunState int

const (
	// StateInit validates mode and window.
	StateInit RunState = iota

	// StateResolvingCheckpoint derives the resume cursor.
	StateResolvingCheckpoint

	// StateStreaming produces documents.
	StateStreaming

	// StateDone means all items in the window were emitted.
	StateDone

	// StateFailed means the run aborted; the last applied checkpoint
	// is preserved.
	StateFailed
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateResolvingCheckpoint:
		return "RESOLVING_CHECKPOINT"
	case StateStreaming:
		return "STREAMING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Mode selects where raw items come from.
type Mode int

const (
	// ModeLive fetches from the network, optionally archiving.
	ModeLive Mode = iota

	// ModeReplay fetches exclusively from a previously written
	// archive, without network access.
	ModeReplay
)

// Request describes one fetch run.
type Request struct {
	// Category of items to produce.
	Category string

	// Mode is live or replay.
	Mode Mode

	// Window is the requested [from, to) interval.
	Window domain.Window

	// Checkpoint resumes a prior run when non-nil.
	Checkpoint *domain.FetchCheckpoint

	// Tag labels emitted documents. Defaults to the backend origin.
	Tag string
}

// Fetcher drives a backend through the fetch lifecycle and yields the
// document stream. On success the error channel receives a *RunDone
// carrying the final checkpoint and summary.
type Fetcher interface {
	// Fetch starts one run. The returned channels are closed when the
	// run ends. Cancellation via ctx is honoured at item boundaries
	// only.
	Fetch(ctx context.Context, req Request) (<-chan domain.Document, <-chan error)

	// Status reports the current run state and progress.
	Status() Status
}

// Status is a snapshot of a run's progress.
type Status struct {
	RunID    string
	State    RunState
	Emitted  int
	Skipped  int
}

// RunDone is sent on the error channel when a run reaches DONE.
type RunDone struct {
	Checkpoint domain.FetchCheckpoint
	Summary    domain.Summary
}

// Error implements the error interface so RunDone can travel the error
// channel.
func (*RunDone) Error() string {
	return "run complete"
}

// IsRunDone checks if an error is actually a successful completion.
func IsRunDone(err error) (*RunDone, bool) {
	var rd *RunDone
	if errors.As(err, &rd) {
		return rd, true
	}
	return nil, false
}

// RunError wraps a run failure with the context a caller needs for a
// clean resume: the last applied checkpoint and the emit count.
// Nothing already emitted is retracted.
type RunError struct {
	Err        error
	Checkpoint domain.FetchCheckpoint
	Emitted    int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("fetch run failed after %d document(s): %v", e.Emitted, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
