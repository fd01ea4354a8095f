// Package guard refuses installs that would collide with packages declared
// as conflicting.
package guard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
)

// Install is one place a package was found.
type Install struct {
	Package  string
	Location string
	// Managed is true when keg placed the files.
	Managed bool
}

// Installed finds existing installs of a package.
type Installed interface {
	Find(ctx context.Context, pkg string) ([]Install, error)
}

// ConflictError reports an installed package listed in a manifest's conflicts.
type ConflictError struct {
	Package  string
	Conflict string
	Source   string
}

func (e *ConflictError) Error() string {
	if e.Conflict == e.Package {
		return fmt.Sprintf("%s conflicts with another installation of %s at %s", e.Package, e.Conflict, e.Source)
	}
	return fmt.Sprintf("%s conflicts with installed package %s (%s)", e.Package, e.Conflict, e.Source)
}

// Check returns a *ConflictError for the first installed package named in
// m's conflicts. A conflict naming m itself only counts for installs keg did
// not make, so reinstalls and upgrades pass.
func Check(ctx context.Context, m *manifest.Manifest, installed Installed) error {
	if installed == nil {
		return nil
	}
	for _, name := range m.Conflicts {
		if err := ctx.Err(); err != nil {
			return err
		}
		found, err := installed.Find(ctx, name)
		if err != nil {
			return fmt.Errorf("look up %s: %w", name, err)
		}
		for _, inst := range found {
			if name == m.Name && inst.Managed {
				continue
			}
			return &ConflictError{Package: m.Name, Conflict: name, Source: inst.Location}
		}
	}
	return nil
}

// RecordSource reports packages that have an installation record.
type RecordSource struct {
	Records *record.Store
}

func (s RecordSource) Find(_ context.Context, pkg string) ([]Install, error) {
	rec, err := s.Records.Get(pkg)
	if errors.Is(err, record.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []Install{{
		Package:  pkg,
		Location: fmt.Sprintf("keg record %s %s", rec.Package, rec.Version),
		Managed:  true,
	}}, nil
}

// PathSource reports executables on $PATH named after the package. An
// executable is managed when a record of that package lists it.
type PathSource struct {
	Records  *record.Store
	LookPath func(string) (string, error) // defaults to exec.LookPath
}

func (s PathSource) Find(_ context.Context, pkg string) ([]Install, error) {
	lookPath := s.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	path, err := lookPath(pkg)
	if err != nil {
		// Not on PATH
		return nil, nil
	}

	managed, err := s.owns(pkg, path)
	if err != nil {
		return nil, err
	}
	return []Install{{Package: pkg, Location: path, Managed: managed}}, nil
}

func (s PathSource) owns(pkg, path string) (bool, error) {
	if s.Records == nil {
		return false, nil
	}
	rec, err := s.Records.Get(pkg)
	if errors.Is(err, record.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	resolved := resolve(path)
	for _, f := range rec.FilesOfKind(manifest.KindBinary) {
		if resolve(f.Path) == resolved {
			return true, nil
		}
	}
	return false, nil
}

func resolve(path string) string {
	if r, err := filepath.EvalSymlinks(path); err == nil {
		return r
	}
	return filepath.Clean(path)
}

// Sources combines several Installed implementations.
type Sources []Installed

func (s Sources) Find(ctx context.Context, pkg string) ([]Install, error) {
	var all []Install
	for _, src := range s {
		found, err := src.Find(ctx, pkg)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}
