// Package record persists installation records: what keg put on disk for
// each installed package.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// SchemaVersion is the current record format.
const SchemaVersion = 1

// ErrNotFound is returned when a package has no record.
var ErrNotFound = errors.New("package is not installed")

// Record describes one installed package. It carries no timestamps so that
// reinstalling the same version produces an identical record.
type Record struct {
	Schema  int     `json:"schema"`
	Package string  `json:"package"`
	Version string  `json:"version"`
	Variant Variant `json:"variant"`
	Files   []File  `json:"files"`
}

// Variant identifies the artifact the package was installed from.
type Variant struct {
	OS     manifest.OS `json:"os"`
	Arch   string      `json:"arch"`
	URL    string      `json:"url"`
	SHA256 string      `json:"sha256"`
}

// File is one installed destination.
type File struct {
	Path   string                   `json:"path"`
	Kind   manifest.DestinationKind `json:"kind"`
	SHA256 string                   `json:"sha256"`
	Mode   fs.FileMode              `json:"mode"`
}

// Paths returns the destination paths in install order.
func (r *Record) Paths() []string {
	paths := make([]string, len(r.Files))
	for i, f := range r.Files {
		paths[i] = f.Path
	}
	return paths
}

// FilesOfKind returns the files installed as kind.
func (r *Record) FilesOfKind(kind manifest.DestinationKind) []File {
	var out []File
	for _, f := range r.Files {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Store keeps one JSON record per package in a directory.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// NewStore returns a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(pkg string) (string, error) {
	if err := manifest.ValidatePackageName(pkg); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, pkg+".json"), nil
}

// Get loads the record of pkg, or ErrNotFound.
func (s *Store) Get(pkg string) (*Record, error) {
	path, err := s.path(pkg)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", pkg, ErrNotFound)
		}
		return nil, fmt.Errorf("read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", pkg, err)
	}
	if rec.Schema > SchemaVersion {
		return nil, fmt.Errorf("record %s has schema %d, newer than supported %d", pkg, rec.Schema, SchemaVersion)
	}
	return &rec, nil
}

// Has reports whether pkg has a record.
func (s *Store) Has(pkg string) (bool, error) {
	_, err := s.Get(pkg)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put writes rec atomically, replacing any previous record.
func (s *Store) Put(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	path, err := s.path(rec.Package)
	if err != nil {
		return err
	}
	if rec.Schema == 0 {
		rec.Schema = SchemaVersion
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := transaction.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write record %s: %w", rec.Package, err)
	}
	return nil
}

// Delete removes the record of pkg. A missing record is not an error.
func (s *Store) Delete(pkg string) error {
	path, err := s.path(pkg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete record %s: %w", pkg, err)
	}
	return transaction.SyncDir(s.dir)
}

// List returns all records sorted by package name.
func (s *Store) List() ([]*Record, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)

	records := make([]*Record, 0, len(names))
	for _, name := range names {
		rec, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
