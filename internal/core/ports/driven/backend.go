package driven

import (
	"context"
	"errors"
	"time"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
)

// Backend fetches raw items from one data source instance. Each source
// type (github, git, mailing list, ...) implements this interface.
//
// A backend owns its own pagination and network/parsing logic; the
// orchestrator owns identity, windowing, ordering enforcement and
// checkpoint advancement. Backends are unaware of archiving and
// rate-limit mechanics: those live in the client the backend was
// constructed with.
type Backend interface {
	// Name returns the backend type identifier ("github", "git", ...).
	Name() string

	// Version is the backend implementation version, recorded in every
	// emitted document.
	Version() string

	// Origin identifies the source instance being fetched.
	Origin() string

	// Categories lists the classification tags this backend produces.
	Categories() []string

	// Capabilities returns what this backend supports.
	Capabilities() BackendCapabilities

	// Fetch produces raw items for one category, starting from the
	// request cursor. Items must be yielded in non-decreasing
	// updated_on order. On success the error channel receives a
	// *FetchDone carrying the final cursor; any other error aborts
	// the run.
	Fetch(ctx context.Context, req FetchRequest) (<-chan domain.RawItem, <-chan error)

	// Category classifies one produced item.
	Category(item domain.RawItem) string

	// NativeID extracts the source-local stable identifier.
	NativeID(item domain.RawItem) (string, error)

	// UpdatedOn extracts the last-changed time of the item.
	UpdatedOn(item domain.RawItem) (time.Time, error)
}

// BackendCapabilities describes what a backend supports.
type BackendCapabilities struct {
	// SupportsResuming indicates interrupted runs can continue from a
	// checkpoint without leaving holes in the collected items.
	SupportsResuming bool

	// SupportsArchiving indicates the backend's client records raw
	// responses and can replay them without network access.
	SupportsArchiving bool
}

// FetchRequest is the input to one Backend.Fetch invocation.
type FetchRequest struct {
	// Category selects which kind of items to produce. Must be one of
	// Backend.Categories.
	Category string

	// Window bounds the run; the backend may use it to limit paging
	// but the orchestrator applies the authoritative filter.
	Window domain.Window

	// Cursor is the adapter-defined resume state from a prior run.
	// Empty for a fresh run.
	Cursor string
}

// FetchDone is sent on a backend's error channel when item production
// completes successfully. Carries the final resume cursor.
type FetchDone struct {
	Cursor string
}

// Error implements the error interface so FetchDone can travel the
// error channel.
func (*FetchDone) Error() string {
	return "fetch complete"
}

// IsFetchDone checks if an error is actually a successful completion.
func IsFetchDone(err error) (*FetchDone, bool) {
	var fd *FetchDone
	if errors.As(err, &fd) {
		return fd, true
	}
	return nil, false
}
