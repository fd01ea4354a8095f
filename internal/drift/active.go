package drift

import (
	"os/exec"
	"path/filepath"
)

// ActiveLookup finds the executable a shell would run for name.
type ActiveLookup func(name string) (string, bool)

// QueryActive looks name up on PATH, resolving symlinks.
func QueryActive(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		// Tool not found in PATH
		return "", false
	}
	return resolve(path), true
}

// resolve follows symlinks to the actual binary path
func resolve(path string) string {
	resolvedPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		// If symlink resolution fails, use original path
		return filepath.Clean(path)
	}
	return resolvedPath
}
