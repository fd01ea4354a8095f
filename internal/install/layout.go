package install

import (
	"fmt"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/shell"
)

// Layout maps each destination kind to an absolute directory.
type Layout map[manifest.DestinationKind]string

// DefaultLayout derives the standard directories under prefix.
func DefaultLayout(prefix string) Layout {
	return Layout{
		manifest.KindBinary:         filepath.Join(prefix, "bin"),
		manifest.KindManPage:        filepath.Join(prefix, "share", "man", "man1"),
		manifest.KindCompletionBash: shell.CompletionDir(shell.ShellBash, prefix),
		manifest.KindCompletionZsh:  shell.CompletionDir(shell.ShellZsh, prefix),
		manifest.KindCompletionFish: shell.CompletionDir(shell.ShellFish, prefix),
	}
}

// Merge returns a copy of l with the non-empty entries of overrides applied.
func (l Layout) Merge(overrides map[manifest.DestinationKind]string) Layout {
	out := make(Layout, len(l))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Validate checks that every known kind maps to an absolute directory.
func (l Layout) Validate() error {
	for _, kind := range manifest.Kinds() {
		dir, ok := l[kind]
		if !ok || dir == "" {
			return fmt.Errorf("no directory configured for %s", kind)
		}
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("directory for %s must be absolute: %s", kind, dir)
		}
	}
	for kind := range l {
		if !kind.IsValid() {
			return fmt.Errorf("unknown destination kind %q", kind)
		}
	}
	return nil
}

// Dir returns the directory of kind.
func (l Layout) Dir(kind manifest.DestinationKind) (string, error) {
	dir, ok := l[kind]
	if !ok || dir == "" {
		return "", fmt.Errorf("no directory configured for %s", kind)
	}
	return filepath.Clean(dir), nil
}

// Destination returns the absolute path rule installs to.
func (l Layout) Destination(rule manifest.InstallRule) (string, error) {
	dir, err := l.Dir(rule.Kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, rule.DestName()), nil
}
