// Package tap manages taps: git repositories of package manifests that are
// cloned locally and searched by package name.
package tap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	gogit "github.com/go-git/go-git/v5"
)

// Common tap errors
var (
	ErrTapExists        = errors.New("tap already exists")
	ErrTapNotFound      = errors.New("tap not found")
	ErrManifestNotFound = errors.New("manifest not found")
)

// tapNamePattern matches tap names: core, my-tools, acme.internal
var tapNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// manifestExts lists manifest file extensions in lookup order.
var manifestExts = []string{".lua", ".yaml", ".yml", ".json"}

// Tap is a cloned manifest repository.
type Tap struct {
	Name string
	URL  string
	Path string
	Head string
}

// Manager clones, updates and searches taps under one directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// NewManager creates a tap manager rooted at dir.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{dir: dir, logger: logger}
}

// ValidateName checks a tap name.
func ValidateName(name string) error {
	if !tapNamePattern.MatchString(name) {
		return fmt.Errorf("invalid tap name %q (lowercase letters, digits, '.', '_', '-')", name)
	}
	return nil
}

func (m *Manager) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(m.dir, name), nil
}

// Add clones url as tap name.
func (m *Manager) Add(ctx context.Context, name, url string) (*Tap, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	path, err := m.path(name)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("tap URL cannot be empty")
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTapExists, name)
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create tap directory: %w", err)
	}

	m.logger.Debug("cloning tap", "name", name, "url", url)
	repo, err := gogit.PlainCloneContext(ctx, path, false, &gogit.CloneOptions{URL: url})
	if err != nil {
		os.RemoveAll(path)
		return nil, fmt.Errorf("clone tap %s: %w", name, err)
	}

	return describe(name, path, repo), nil
}

// Update pulls the latest commits of tap name. It reports whether anything
// changed.
func (m *Manager) Update(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}
	repo, _, err := m.open(name)
	if err != nil {
		return false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &gogit.PullOptions{RemoteName: "origin"})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull tap %s: %w", name, err)
	}
	m.logger.Debug("updated tap", "name", name)
	return true, nil
}

// Remove deletes tap name.
func (m *Manager) Remove(name string) error {
	path, err := m.path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrTapNotFound, name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove tap %s: %w", name, err)
	}
	return nil
}

// Get returns tap name.
func (m *Manager) Get(name string) (*Tap, error) {
	repo, path, err := m.open(name)
	if err != nil {
		return nil, err
	}
	return describe(name, path, repo), nil
}

// List returns all taps sorted by name.
func (m *Manager) List() ([]*Tap, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tap directory: %w", err)
	}

	var taps []*Tap
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		t, err := m.Get(e.Name())
		if err != nil {
			m.logger.Warn("skipping invalid tap", "name", e.Name(), "error", err)
			continue
		}
		taps = append(taps, t)
	}
	sort.Slice(taps, func(i, j int) bool { return taps[i].Name < taps[j].Name })
	return taps, nil
}

// Find returns the manifest path of pkg. A version-pinned file
// (pkg@version.ext) wins over an unpinned one. Taps are searched in name
// order; within a tap the root comes before Formula/.
func (m *Manager) Find(pkg, version string) (string, error) {
	taps, err := m.List()
	if err != nil {
		return "", err
	}

	var names []string
	if version != "" {
		names = append(names, pkg+"@"+version)
	}
	names = append(names, pkg)

	for _, name := range names {
		for _, t := range taps {
			for _, dir := range []string{t.Path, filepath.Join(t.Path, "Formula")} {
				for _, ext := range manifestExts {
					candidate := filepath.Join(dir, name+ext)
					if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
						return candidate, nil
					}
				}
			}
		}
	}

	if version != "" {
		return "", fmt.Errorf("%w: %s@%s", ErrManifestNotFound, pkg, version)
	}
	return "", fmt.Errorf("%w: %s", ErrManifestNotFound, pkg)
}

func (m *Manager) open(name string) (*gogit.Repository, string, error) {
	path, err := m.path(name)
	if err != nil {
		return nil, "", err
	}
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, "", fmt.Errorf("%w: %s", ErrTapNotFound, name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open tap %s: %w", name, err)
	}
	return repo, path, nil
}

func describe(name, path string, repo *gogit.Repository) *Tap {
	t := &Tap{Name: name, Path: path}
	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		t.URL = remote.Config().URLs[0]
	}
	if ref, err := repo.Head(); err == nil {
		t.Head = ref.Hash().String()
	}
	return t
}
