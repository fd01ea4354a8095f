package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvKegDir, "")
	t.Setenv(EnvKegPrefix, "")
	t.Setenv(EnvKegDebug, "")
	return home
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := setupHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local"), cfg.Prefix)
	assert.Equal(t, filepath.Join(home, ".config", "keg"), cfg.KegDir)
	assert.Equal(t, 3, cfg.Retries())
	assert.Equal(t, 5*time.Minute, cfg.Network.Timeout)
	assert.Equal(t, time.Second, cfg.Network.Backoff)
	assert.True(t, cfg.PathProbe())
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.DirOverrides())
	assert.Equal(t, filepath.Join(home, ".config", "keg", "records"), cfg.RecordsDir())
}

func TestLoad_File(t *testing.T) {
	home := setupHome(t)
	path := writeConfig(t, filepath.Join(home, ".config", "keg"), `
prefix: ~/tools
dirs:
  binary: /opt/keg/bin
  completion_zsh: ~/.zfunc
network:
  retries: 0
  timeout: 30s
  backoff: 250ms
keyring: ~/.config/keg/release.gpg
conflicts:
  path_probe: false
`)

	for _, p := range []string{"", path} {
		cfg, err := Load(p)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, "tools"), cfg.Prefix)
		assert.Equal(t, 0, cfg.Retries(), "explicit zero disables retries")
		assert.Equal(t, 30*time.Second, cfg.Network.Timeout)
		assert.Equal(t, 250*time.Millisecond, cfg.Network.Backoff)
		assert.Equal(t, filepath.Join(home, ".config", "keg", "release.gpg"), cfg.Keyring)
		assert.False(t, cfg.PathProbe())
		assert.Equal(t, map[manifest.DestinationKind]string{
			manifest.KindBinary:        "/opt/keg/bin",
			manifest.KindCompletionZsh: filepath.Join(home, ".zfunc"),
		}, cfg.DirOverrides())
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	home := setupHome(t)
	kegDir := filepath.Join(home, "state")
	writeConfig(t, kegDir, "prefix: /from/file\n")

	t.Setenv(EnvKegDir, kegDir)
	t.Setenv(EnvKegPrefix, "/from/env")
	t.Setenv(EnvKegDebug, "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, kegDir, cfg.KegDir)
	assert.Equal(t, "/from/env", cfg.Prefix)
	assert.True(t, cfg.Debug)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown key", "prefx: /usr/local\n", "field prefx not found"},
		{"relative dir", "dirs:\n  binary: bin\n", "dirs.binary must be an absolute path"},
		{"relative prefix", "prefix: local\n", "prefix must be an absolute path"},
		{"too many retries", "network:\n  retries: 11\n", "between 0 and 10"},
		{"negative retries", "network:\n  retries: -1\n", "between 0 and 10"},
		{"negative timeout", "network:\n  timeout: -1s\n", "timeout must be positive"},
		{"bad duration", "network:\n  timeout: soon\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := setupHome(t)
			path := writeConfig(t, home, tt.body)

			_, err := Load(path)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	home := setupHome(t)
	path := writeConfig(t, home, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retries())
}

func TestConfig_Marshal(t *testing.T) {
	cfg := Default("/home/u")
	out, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "prefix: /home/u/.local")
	assert.NotContains(t, string(out), "KegDir")
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "/h", expandHome("~", "/h"))
	assert.Equal(t, "/h/x/y", expandHome("~/x/y", "/h"))
	assert.Equal(t, "~user/x", expandHome("~user/x", "/h"))
	assert.Equal(t, "/abs", expandHome("/abs", "/h"))
}
