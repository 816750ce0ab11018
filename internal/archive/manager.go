package archive

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
)

// StorageExt is the file extension of archive stores.
const StorageExt = ".sqlite3"

// nameLayout is the timestamp layout used for archive file names.
// Colons are avoided so names stay portable across filesystems.
const nameLayout = "2006-01-02T15-04-05.000000000"

// Manager handles the archives of one (origin, backend, version)
// triple under a root directory. Each fetch run gets its own store
// file, named by its creation time.
type Manager struct {
	dir string
}

// NewManager creates the archive directory for the given triple under
// root, creating it when missing.
func NewManager(root, origin, backendName, backendVersion string) (*Manager, error) {
	dir := filepath.Join(root, sanitize(origin), backendName, backendVersion)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the managed directory.
func (m *Manager) Dir() string {
	return m.dir
}

// New creates a fresh archive store for a run starting now.
func (m *Manager) New() (*Store, error) {
	name := time.Now().UTC().Format(nameLayout) + StorageExt
	return Open(filepath.Join(m.dir, name))
}

// List returns the archive names (without extension) created at or
// after since, oldest first.
func (m *Manager) List(since time.Time) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), StorageExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), StorageExt)
		createdAt, err := time.Parse(nameLayout, name)
		if err != nil {
			continue
		}
		if createdAt.Before(since) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the file path of the named archive.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+StorageExt)
}

// Latest returns the path of the most recent archive, or an error when
// none exists.
func (m *Manager) Latest() (string, error) {
	names, err := m.List(time.Time{})
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no archives in %s", domain.ErrArchiveUnavailable, m.dir)
	}
	return filepath.Join(m.dir, names[len(names)-1]+StorageExt), nil
}

// Delete removes the named archive.
func (m *Manager) Delete(name string) error {
	path := filepath.Join(m.dir, name+StorageExt)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArchiveUnavailable, err)
	}
	return nil
}

// DeleteAll removes every archive in the directory.
func (m *Manager) DeleteAll() error {
	names, err := m.List(time.Time{})
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.Delete(name); err != nil {
			return err
		}
	}
	return nil
}

// sanitize turns an origin (usually a URL) into a path component.
func sanitize(origin string) string {
	s := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		s = u.Host + u.Path
	}
	s = strings.Trim(s, "/")
	s = strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(s)
	if s == "" {
		s = "origin"
	}
	return s
}
