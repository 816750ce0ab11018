package domain

import (
	"time"
)

// FetchCheckpoint is the resume state of a fetch run. It is updated by
// the orchestrator after each successfully emitted item and persisted
// by the caller between runs.
type FetchCheckpoint struct {
	// FromDate is the inclusive lower bound of the requested window.
	FromDate time.Time `json:"from_date"`

	// ToDate is the exclusive upper bound of the requested window.
	// Zero means unbounded.
	ToDate time.Time `json:"to_date,omitempty"`

	// Cursor is adapter-defined opaque state (offset, page token or
	// last-seen native id).
	Cursor string `json:"cursor,omitempty"`
}

// Window is a half-open time interval [From, To). A zero To means
// unbounded above.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow validates and builds a window. From defaults to the Unix
// epoch when zero. Returns ErrInvalidWindow when To precedes From.
func NewWindow(from, to time.Time) (Window, error) {
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if !to.IsZero() && to.Before(from) {
		return Window{}, ErrInvalidWindow
	}
	return Window{From: from.UTC(), To: to.UTC()}, nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Bounded reports whether the window has an upper bound.
func (w Window) Bounded() bool {
	return !w.To.IsZero()
}
