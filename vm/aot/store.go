package aot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound indicates the requested archive doesn't exist.
var ErrNotFound = errors.New("archive not found")

// Store persists encoded archives by name.
type Store interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	List() ([]string, error)
	Close() error
}

// archiveExt is the file extension of archives in a FileStore.
const archiveExt = ".indy"

// FileStore keeps one file per archive in a directory.
type FileStore struct {
	Dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("aot: bad archive name %q", name)
	}
	return filepath.Join(s.Dir, name+archiveExt), nil
}

// Put writes an archive, replacing any previous one of the same name.
func (s *FileStore) Put(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	return nil
}

// Get reads an archive.
func (s *FileStore) Get(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return data, nil
}

// List returns the stored archive names, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), archiveExt) {
			names = append(names, strings.TrimSuffix(e.Name(), archiveExt))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// OpenStore opens a store by kind: "file" (a directory) or "sqlite" (a
// database file).
func OpenStore(kind, path string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("aot: unknown store kind %q", kind)
}
