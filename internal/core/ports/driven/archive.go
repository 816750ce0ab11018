package driven

import (
	"time"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
)

// ArchiveWriter is the append side of the archive log. Writes happen
// in strict call order; the store never reorders or merges entries.
// One fetch run owns its writer exclusively.
type ArchiveWriter interface {
	// Append stores one entry. A failed write is fatal for the run.
	Append(entry domain.ArchiveEntry) error

	// BeginScope appends a BEGIN marker and pushes the label on the
	// scope stack.
	BeginScope(label string) error

	// EndScope appends an END marker. The label must match the top of
	// the scope stack or ErrUnbalancedScope is returned.
	EndScope(label string) error

	// Close flushes and releases the store. Returns ErrUnbalancedScope
	// if any scope is still open.
	Close() error
}

// ArchiveReader replays a previously written archive in original write
// order. The sequence is finite and restartable from the start only.
type ArchiveReader interface {
	// Next returns the next entry together with the label of its
	// innermost enclosing scope (empty at top level). Markers are
	// consumed internally: callers only see DATA entries. Returns
	// ErrArchiveExhausted past the end.
	Next() (*domain.ArchiveEntry, string, error)

	// Reset rewinds the reader to the first entry.
	Reset() error

	// ArchivedSince reports whether the archive's first entry was
	// stored at or after t.
	ArchivedSince(t time.Time) (bool, error)

	// Close releases the store.
	Close() error
}
