// Package config loads keg's engine configuration from YAML and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/shell"
)

// Environment variables recognised by Load.
const (
	EnvKegDir    = shell.EnvKegDir
	EnvKegPrefix = shell.EnvKegPrefix
	EnvKegDebug  = shell.EnvKegDebug
)

// FileName is the config file inside the keg directory.
const FileName = "config.yaml"

// MaxRetries bounds network.retries.
const MaxRetries = 10

// Config captures keg's engine configuration.
type Config struct {
	Prefix    string         `yaml:"prefix"`
	Dirs      Dirs           `yaml:"dirs"`
	Network   Network        `yaml:"network"`
	Keyring   string         `yaml:"keyring,omitempty"`
	Conflicts ConflictConfig `yaml:"conflicts"`

	// KegDir holds records, journals, locks, taps and the download cache.
	KegDir string `yaml:"-"`
	// Debug is set by KEG_DEBUG.
	Debug bool `yaml:"-"`
}

// Dirs overrides individual destination directories. Empty entries derive
// from Prefix.
type Dirs struct {
	Binary         string `yaml:"binary,omitempty"`
	ManPage        string `yaml:"man_page,omitempty"`
	CompletionBash string `yaml:"completion_bash,omitempty"`
	CompletionZsh  string `yaml:"completion_zsh,omitempty"`
	CompletionFish string `yaml:"completion_fish,omitempty"`
}

// Network configures downloads.
type Network struct {
	Retries *int          `yaml:"retries,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Backoff time.Duration `yaml:"backoff,omitempty"`
}

// ConflictConfig configures the conflict guard.
type ConflictConfig struct {
	// PathProbe also treats executables on $PATH as installed packages.
	PathProbe *bool `yaml:"path_probe,omitempty"`
}

// Default returns the baseline configuration for home.
func Default(home string) Config {
	return Config{
		Prefix: filepath.Join(home, ".local"),
		Network: Network{
			Retries: intPtr(3),
			Timeout: 5 * time.Minute,
			Backoff: time.Second,
		},
		Conflicts: ConflictConfig{PathProbe: boolPtr(true)},
		KegDir:    filepath.Join(home, ".config", "keg"),
	}
}

// Load reads the YAML configuration at path, or <keg dir>/config.yaml when
// path is empty, applies environment overrides and validates the result. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determine home directory: %w", err)
	}

	cfg := Default(home)
	if dir := os.Getenv(EnvKegDir); dir != "" {
		cfg.KegDir = expandHome(dir, home)
	}

	if path == "" {
		path = filepath.Join(cfg.KegDir, FileName)
	}
	contents, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(contents, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if prefix := os.Getenv(EnvKegPrefix); prefix != "" {
		cfg.Prefix = prefix
	}
	cfg.Debug = truthy(os.Getenv(EnvKegDebug))

	cfg.expand(home)
	cfg.ApplyDefaults(home)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(contents []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyDefaults fills fields the YAML omitted or cleared.
func (c *Config) ApplyDefaults(home string) {
	defaults := Default(home)

	if c.Prefix == "" {
		c.Prefix = defaults.Prefix
	}
	if c.KegDir == "" {
		c.KegDir = defaults.KegDir
	}
	if c.Network.Retries == nil {
		c.Network.Retries = defaults.Network.Retries
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = defaults.Network.Timeout
	}
	if c.Network.Backoff == 0 {
		c.Network.Backoff = defaults.Network.Backoff
	}
	if c.Conflicts.PathProbe == nil {
		c.Conflicts.PathProbe = defaults.Conflicts.PathProbe
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.Prefix) {
		return fmt.Errorf("prefix must be an absolute path: %q", c.Prefix)
	}
	if !filepath.IsAbs(c.KegDir) {
		return fmt.Errorf("keg directory must be an absolute path: %q", c.KegDir)
	}
	for kind, dir := range c.DirOverrides() {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("dirs.%s must be an absolute path: %q", kind, dir)
		}
	}
	if r := c.Retries(); r < 0 || r > MaxRetries {
		return fmt.Errorf("network.retries must be between 0 and %d (got %d)", MaxRetries, r)
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be positive (got %s)", c.Network.Timeout)
	}
	if c.Network.Backoff < 0 {
		return fmt.Errorf("network.backoff cannot be negative (got %s)", c.Network.Backoff)
	}
	return nil
}

// Retries returns network.retries.
func (c *Config) Retries() int {
	if c.Network.Retries == nil {
		return 0
	}
	return *c.Network.Retries
}

// PathProbe reports whether the conflict guard consults $PATH.
func (c *Config) PathProbe() bool {
	return c.Conflicts.PathProbe == nil || *c.Conflicts.PathProbe
}

// DirOverrides returns the configured destination directories by kind.
func (c *Config) DirOverrides() map[manifest.DestinationKind]string {
	out := make(map[manifest.DestinationKind]string)
	for kind, dir := range map[manifest.DestinationKind]string{
		manifest.KindBinary:         c.Dirs.Binary,
		manifest.KindManPage:        c.Dirs.ManPage,
		manifest.KindCompletionBash: c.Dirs.CompletionBash,
		manifest.KindCompletionZsh:  c.Dirs.CompletionZsh,
		manifest.KindCompletionFish: c.Dirs.CompletionFish,
	} {
		if dir != "" {
			out[kind] = dir
		}
	}
	return out
}

// State directories under KegDir.
func (c *Config) RecordsDir() string { return filepath.Join(c.KegDir, "records") }
func (c *Config) JournalDir() string { return filepath.Join(c.KegDir, "journal") }
func (c *Config) LocksDir() string   { return filepath.Join(c.KegDir, "locks") }
func (c *Config) CacheDir() string   { return filepath.Join(c.KegDir, "cache") }
func (c *Config) TapsDir() string    { return filepath.Join(c.KegDir, "taps") }

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

func (c *Config) expand(home string) {
	c.Prefix = expandHome(c.Prefix, home)
	c.KegDir = expandHome(c.KegDir, home)
	c.Keyring = expandHome(c.Keyring, home)
	for _, p := range []*string{&c.Dirs.Binary, &c.Dirs.ManPage, &c.Dirs.CompletionBash, &c.Dirs.CompletionZsh, &c.Dirs.CompletionFish} {
		*p = expandHome(*p, home)
	}
}

// expandHome replaces a leading "~" with home.
func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
