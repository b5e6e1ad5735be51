package snapshot

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "marketwatch/internal/errors"
)

const oldSuffix = "_old"

// Store is a file-backed snapshot store. Each named list lives in
// <dir>/<name>.json with its immediately-prior generation retained in
// <dir>/<name>_old.json. Writers to the same name are serialized.
type Store struct {
	dir string

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// NewStore creates a snapshot store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewStorageError(dir, "mkdir", err)
	}
	return &Store{
		dir:   dir,
		names: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lockName(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.names[name]
	if !ok {
		m = &sync.Mutex{}
		s.names[name] = m
	}
	return m
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Refresh backs up the current generation of name and overwrites it with
// records. After a successful call the current file holds records and the
// backup holds whatever the current file held immediately before; the
// backup is absent if the name did not previously exist. On any I/O error
// the prior state is left untouched.
func (s *Store) Refresh(name string, records []Record) error {
	m := s.lockName(name)
	m.Lock()
	defer m.Unlock()

	cur := s.path(name)
	if _, err := os.Stat(cur); err == nil {
		if err := copyFile(cur, s.path(name+oldSuffix)); err != nil {
			return apperrors.NewStorageError(name, "backup", err)
		}
	} else if !os.IsNotExist(err) {
		return apperrors.NewStorageError(name, "stat", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return apperrors.NewStorageError(name, "marshal", err)
	}

	// Write through a temp file so a failed write never truncates the
	// current generation.
	tmp := cur + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.NewStorageError(name, "write", err)
	}
	if err := os.Rename(tmp, cur); err != nil {
		os.Remove(tmp)
		return apperrors.NewStorageError(name, "rename", err)
	}
	return nil
}

// Read returns the current generation of name.
// Returns ErrSnapshotNotFound if no snapshot exists under that name.
func (s *Store) Read(name string) ([]Record, error) {
	return s.read(name, s.path(name))
}

// ReadPrevious returns the retained prior generation of name.
// Returns ErrSnapshotNotFound if no backup generation exists.
func (s *Store) ReadPrevious(name string) ([]Record, error) {
	return s.read(name, s.path(name+oldSuffix))
}

func (s *Store) read(name, path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrSnapshotNotFound
		}
		return nil, apperrors.NewStorageError(name, "read", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperrors.NewStorageError(name, "unmarshal", err)
	}
	return records, nil
}

// List returns the names of all current snapshots in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.NewStorageError(s.dir, "readdir", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if strings.HasSuffix(name, oldSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
