package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
)

// Metadata keys stored alongside the entries.
const (
	metaOrigin         = "origin"
	metaBackendName    = "backend_name"
	metaBackendVersion = "backend_version"
	metaCategory       = "category"
	metaCreatedAt      = "created_at"
)

// Ensure Store implements the writer port.
var _ driven.ArchiveWriter = (*Store)(nil)

// Store is a single-writer archive log backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	scopes []string
	closed bool
}

// Open opens or creates an archive at path. The caller owns the handle
// exclusively; concurrent writers to the same path are not supported.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}

	s := &Store{db: db, path: path}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			status INTEGER NOT NULL DEFAULT 0,
			headers TEXT NOT NULL DEFAULT '{}',
			body BLOB,
			stored_at TEXT NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	return err
}

// Path returns the archive file path.
func (s *Store) Path() string {
	return s.path
}

// InitMetadata records which fetch produced this archive. Called once
// at the start of an archived run.
func (s *Store) InitMetadata(origin, backendName, backendVersion, category string) error {
	pairs := map[string]string{
		metaOrigin:         origin,
		metaBackendName:    backendName,
		metaBackendVersion: backendVersion,
		metaCategory:       category,
		metaCreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range pairs {
		if _, err := s.db.Exec(
			"INSERT OR REPLACE INTO metadata(key, value) VALUES(?, ?)", k, v,
		); err != nil {
			return fmt.Errorf("%w: metadata %s: %v", domain.ErrArchiveWrite, k, err)
		}
	}
	return nil
}

// Metadata returns the stored key/value pairs.
func (s *Store) Metadata() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Append stores one entry at the tail of the log. A write failure is
// fatal for the current fetch run.
func (s *Store) Append(entry domain.ArchiveEntry) error {
	if s.closed {
		return fmt.Errorf("%w: store closed", domain.ErrArchiveWrite)
	}

	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	headers, err := json.Marshal(entry.Response.Headers)
	if err != nil {
		return fmt.Errorf("%w: encode headers: %v", domain.ErrArchiveWrite, err)
	}

	_, err = s.db.Exec(
		"INSERT INTO entries(kind, label, status, headers, body, stored_at) VALUES(?, ?, ?, ?, ?, ?)",
		entry.Kind.String(),
		entry.Label,
		entry.Response.StatusCode,
		string(headers),
		entry.Response.Body,
		storedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArchiveWrite, err)
	}
	return nil
}

// BeginScope appends a BEGIN marker and opens a nested scope.
func (s *Store) BeginScope(label string) error {
	if err := s.Append(domain.ArchiveEntry{Kind: domain.EntryBegin, Label: label}); err != nil {
		return err
	}
	s.scopes = append(s.scopes, label)
	return nil
}

// EndScope appends an END marker closing the innermost open scope.
// The label must match; scopes never cross.
func (s *Store) EndScope(label string) error {
	if len(s.scopes) == 0 {
		return fmt.Errorf("%w: END(%s) with no open scope", domain.ErrUnbalancedScope, label)
	}
	top := s.scopes[len(s.scopes)-1]
	if top != label {
		return fmt.Errorf("%w: END(%s) does not match open scope %q", domain.ErrUnbalancedScope, label, top)
	}
	if err := s.Append(domain.ArchiveEntry{Kind: domain.EntryEnd, Label: label}); err != nil {
		return err
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
	return nil
}

// OpenScopes returns how many scopes are currently open.
func (s *Store) OpenScopes() int {
	return len(s.scopes)
}

// Close releases the store. Closing with open scopes is a programming
// error in the adapter and returns ErrUnbalancedScope.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return err
	}
	if len(s.scopes) > 0 {
		return fmt.Errorf("%w: %d scope(s) left open, innermost %q",
			domain.ErrUnbalancedScope, len(s.scopes), s.scopes[len(s.scopes)-1])
	}
	return nil
}
