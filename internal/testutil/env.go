// Package testutil provides utilities for testing keg in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Home   string
	KegDir string
	Prefix string
}

// SetupTestEnv creates isolated test directories for each test.
// This ensures keg tests never interfere with:
// - System installations
// - The user's actual keg configuration and records
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	// Create temp directory (auto-cleaned by testing framework)
	tmpDir := t.TempDir()

	env := &Env{
		Home:   filepath.Join(tmpDir, "home"),
		KegDir: filepath.Join(tmpDir, "home", ".config", "keg"),
		Prefix: filepath.Join(tmpDir, "prefix"),
	}

	t.Setenv("HOME", env.Home)
	t.Setenv("KEG_DIR", env.KegDir)
	t.Setenv("KEG_PREFIX", env.Prefix)
	t.Setenv("KEG_DEBUG", "")

	for _, dir := range []string{env.Home, env.KegDir, env.Prefix} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}
