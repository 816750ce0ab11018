package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chronicle-labs/chronicler/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
)

// Store is a SQLite-backed checkpoint store.
type Store struct {
	db   *sql.DB
	path string
}

var _ driven.CheckpointStore = (*Store)(nil)

// NewStore creates a checkpoint store at the specified data directory.
// If dataDir is empty, defaults to ~/.chronicler/data/checkpoints.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".chronicler", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "checkpoints.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_checkpoints.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Save stores or replaces a checkpoint record.
func (s *Store) Save(ctx context.Context, rec driven.CheckpointRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (backend_name, origin, category, from_date, to_date, cursor, fetched, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(backend_name, origin, category) DO UPDATE SET
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			cursor = excluded.cursor,
			fetched = excluded.fetched,
			updated_at = excluded.updated_at
	`, rec.BackendName, rec.Origin, rec.Category,
		nullTime(rec.Checkpoint.FromDate), nullTime(rec.Checkpoint.ToDate),
		rec.Checkpoint.Cursor, rec.Fetched, rec.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Get retrieves the checkpoint for a key. Returns nil when no prior
// run was recorded.
func (s *Store) Get(ctx context.Context, backendName, origin, category string) (*driven.CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT backend_name, origin, category, from_date, to_date, cursor, fetched, updated_at
		FROM checkpoints
		WHERE backend_name = ? AND origin = ? AND category = ?
	`, backendName, origin, category)

	rec, err := scanCheckpoint(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}
	return rec, nil
}

// Delete removes the checkpoint for a key.
func (s *Store) Delete(ctx context.Context, backendName, origin, category string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE backend_name = ? AND origin = ? AND category = ?
	`, backendName, origin, category)
	if err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

// List returns all recorded checkpoints.
func (s *Store) List(ctx context.Context) ([]driven.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT backend_name, origin, category, from_date, to_date, cursor, fetched, updated_at
		FROM checkpoints
		ORDER BY backend_name, origin, category
	`)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var recs []driven.CheckpointRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanCheckpoint(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return recs, nil
}

func scanCheckpoint(scan func(...any) error) (*driven.CheckpointRecord, error) {
	var rec driven.CheckpointRecord
	var fromDate, toDate, updatedAt sql.NullTime
	if err := scan(&rec.BackendName, &rec.Origin, &rec.Category,
		&fromDate, &toDate, &rec.Checkpoint.Cursor, &rec.Fetched, &updatedAt); err != nil {
		return nil, err
	}

	if fromDate.Valid {
		rec.Checkpoint.FromDate = fromDate.Time
	}
	if toDate.Valid {
		rec.Checkpoint.ToDate = toDate.Time
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	return &rec, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
