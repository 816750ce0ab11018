package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
)

// Ensure Reader implements the reader port.
var _ driven.ArchiveReader = (*Reader)(nil)

// Reader replays an archive in original write order. Markers are
// consumed internally to maintain the scope stack: callers receive DATA
// entries only, each tagged with its innermost enclosing label. Scopes
// with labels the caller does not know are still walked, so adapters
// can evolve which scopes they nest without breaking older archives.
type Reader struct {
	db     *sql.DB
	path   string
	rows   *sql.Rows
	scopes []string
}

// NewReader opens the archive at path for replay.
func NewReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}

	r := &Reader{db: db, path: path}
	if err := r.Reset(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Reset rewinds the reader to the first entry. Replay is restartable
// from the start only.
func (r *Reader) Reset() error {
	if r.rows != nil {
		r.rows.Close()
	}

	rows, err := r.db.Query(
		"SELECT kind, label, status, headers, body, stored_at FROM entries ORDER BY seq ASC")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	r.rows = rows
	r.scopes = r.scopes[:0]
	return nil
}

// Next returns the next DATA entry and the label of its innermost
// enclosing scope. Returns ErrArchiveExhausted past the end of the log.
func (r *Reader) Next() (*domain.ArchiveEntry, string, error) {
	for {
		entry, err := r.nextEntry()
		if err != nil {
			return nil, "", err
		}

		switch entry.Kind {
		case domain.EntryBegin:
			r.scopes = append(r.scopes, entry.Label)
		case domain.EntryEnd:
			if len(r.scopes) == 0 || r.scopes[len(r.scopes)-1] != entry.Label {
				return nil, "", fmt.Errorf("%w: stray END(%s) in replay",
					domain.ErrUnbalancedScope, entry.Label)
			}
			r.scopes = r.scopes[:len(r.scopes)-1]
		case domain.EntryData:
			return entry, r.scope(), nil
		}
	}
}

// scope returns the innermost open label, or empty at top level.
func (r *Reader) scope() string {
	if len(r.scopes) == 0 {
		return ""
	}
	return r.scopes[len(r.scopes)-1]
}

func (r *Reader) nextEntry() (*domain.ArchiveEntry, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
		}
		if len(r.scopes) > 0 {
			return nil, fmt.Errorf("%w: archive ends with %d open scope(s)",
				domain.ErrUnbalancedScope, len(r.scopes))
		}
		return nil, domain.ErrArchiveExhausted
	}

	var (
		kind     string
		label    string
		status   int
		headers  string
		body     []byte
		storedAt string
	)
	if err := r.rows.Scan(&kind, &label, &status, &headers, &body, &storedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}

	entry := &domain.ArchiveEntry{Label: label}

	switch kind {
	case "DATA":
		entry.Kind = domain.EntryData
	case "BEGIN":
		entry.Kind = domain.EntryBegin
	case "END":
		entry.Kind = domain.EntryEnd
	default:
		return nil, fmt.Errorf("%w: unknown entry kind %q", domain.ErrArchiveUnavailable, kind)
	}

	if entry.Kind == domain.EntryData {
		var hdrs map[string]string
		if err := json.Unmarshal([]byte(headers), &hdrs); err != nil {
			return nil, fmt.Errorf("%w: decode headers: %v", domain.ErrArchiveUnavailable, err)
		}
		entry.Response = domain.RawResponse{
			StatusCode: status,
			Headers:    hdrs,
			Body:       body,
		}
	}

	if ts, err := time.Parse(time.RFC3339Nano, storedAt); err == nil {
		entry.StoredAt = ts
	}

	return entry, nil
}

// ArchivedSince reports whether the first entry of the log was stored
// at or after t. Used to decide if a stale archive should be trusted.
func (r *Reader) ArchivedSince(t time.Time) (bool, error) {
	var storedAt string
	err := r.db.QueryRow(
		"SELECT stored_at FROM entries ORDER BY seq ASC LIMIT 1").Scan(&storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}

	first, err := time.Parse(time.RFC3339Nano, storedAt)
	if err != nil {
		return false, fmt.Errorf("%w: bad stored_at %q", domain.ErrArchiveUnavailable, storedAt)
	}
	return !first.Before(t), nil
}

// Close releases the store.
func (r *Reader) Close() error {
	if r.rows != nil {
		r.rows.Close()
	}
	return r.db.Close()
}
