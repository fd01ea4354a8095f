// Package service runs keg's install pipeline: lock, recover, manifest,
// resolve, conflict guard, fetch and verify, install.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ZebulonRouseFrantzich/keg/internal/config"
	"github.com/ZebulonRouseFrantzich/keg/internal/drift"
	"github.com/ZebulonRouseFrantzich/keg/internal/fetch"
	"github.com/ZebulonRouseFrantzich/keg/internal/guard"
	"github.com/ZebulonRouseFrantzich/keg/internal/install"
	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/platform"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
	"github.com/ZebulonRouseFrantzich/keg/internal/tap"
	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// Fetcher downloads and verifies release archives.
type Fetcher interface {
	FetchAndVerify(ctx context.Context, m *manifest.Manifest, v *manifest.Variant) (*fetch.Archive, error)
}

// ManifestFinder locates the manifest file of a package.
type ManifestFinder interface {
	Find(pkg, version string) (string, error)
}

// Options wires an Installer.
type Options struct {
	Records   *record.Store
	Executor  *install.Executor
	Fetcher   Fetcher
	Finder    ManifestFinder // optional; nil allows manifest paths only
	Detector  platform.Detector
	Installed guard.Installed    // optional; nil disables the conflict guard
	Active    drift.ActiveLookup // optional; defaults to drift.QueryActive
	LocksDir  string
	Clock     Clock
	Logger    *slog.Logger
	// Parallelism bounds InstallAll. Zero uses GOMAXPROCS.
	Parallelism int
}

// Installer runs package operations.
type Installer struct {
	records     *record.Store
	executor    *install.Executor
	fetcher     Fetcher
	finder      ManifestFinder
	detector    platform.Detector
	installed   guard.Installed
	active      drift.ActiveLookup
	locksDir    string
	clock       Clock
	logger      *slog.Logger
	parallelism int
}

// New validates opts and returns an Installer.
func New(opts Options) (*Installer, error) {
	switch {
	case opts.Records == nil:
		return nil, fmt.Errorf("record store is required")
	case opts.Executor == nil:
		return nil, fmt.Errorf("install executor is required")
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case opts.Detector == nil:
		return nil, fmt.Errorf("platform detector is required")
	case opts.LocksDir == "":
		return nil, fmt.Errorf("locks directory is required")
	}

	i := &Installer{
		records:     opts.Records,
		executor:    opts.Executor,
		fetcher:     opts.Fetcher,
		finder:      opts.Finder,
		detector:    opts.Detector,
		installed:   opts.Installed,
		active:      opts.Active,
		locksDir:    opts.LocksDir,
		clock:       opts.Clock,
		logger:      opts.Logger,
		parallelism: opts.Parallelism,
	}
	if i.active == nil {
		i.active = drift.QueryActive
	}
	if i.clock == nil {
		i.clock = RealClock{}
	}
	if i.logger == nil {
		i.logger = slog.New(slog.DiscardHandler)
	}
	if i.parallelism <= 0 {
		i.parallelism = runtime.GOMAXPROCS(0)
	}
	return i, nil
}

// OptionsFromConfig builds the production collaborators described by cfg.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) (Options, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	records := record.NewStore(cfg.RecordsDir())
	layout := install.DefaultLayout(cfg.Prefix).Merge(cfg.DirOverrides())
	executor, err := install.NewExecutor(install.Options{
		Layout:     layout,
		JournalDir: cfg.JournalDir(),
		Records:    records,
		Logger:     logger,
	})
	if err != nil {
		return Options{}, err
	}

	fetcher := fetch.New(fetch.Options{
		CacheDir:    cfg.CacheDir(),
		Retries:     cfg.Retries(),
		Timeout:     cfg.Network.Timeout,
		Backoff:     cfg.Network.Backoff,
		KeyringPath: cfg.Keyring,
		Logger:      logger,
	})

	sources := guard.Sources{guard.RecordSource{Records: records}}
	if cfg.PathProbe() {
		sources = append(sources, guard.PathSource{Records: records})
	}

	return Options{
		Records:   records,
		Executor:  executor,
		Fetcher:   fetcher,
		Finder:    tap.NewManager(cfg.TapsDir(), logger),
		Detector:  platform.NewDetector(),
		Installed: sources,
		LocksDir:  cfg.LocksDir(),
		Logger:    logger,
	}, nil
}

// Layout returns the destination directories files are installed into.
func (i *Installer) Layout() install.Layout {
	return i.executor.Layout()
}

// List returns every installed package's record, sorted by name.
func (i *Installer) List() ([]*record.Record, error) {
	return i.records.List()
}

// withLock runs fn while holding pkg's lock, after rolling back any journal
// an interrupted run left behind.
func (i *Installer) withLock(ctx context.Context, pkg string, fn func() error) error {
	lock, err := transaction.AcquireLock(ctx, i.locksDir, pkg)
	if err != nil {
		return stageError(pkg, StageLock, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			i.logger.Warn("failed to release lock", "package", pkg, "error", err)
		}
	}()

	recovered, err := i.executor.Recover(ctx, pkg)
	if err != nil {
		return stageError(pkg, StageInstall, fmt.Errorf("recover interrupted operation: %w", err))
	}
	if recovered {
		i.logger.Info("recovered interrupted operation", "package", pkg)
	}

	return fn()
}

// loadManifest loads ref, which is either a manifest file or a package name
// optionally pinned as name@version.
func (i *Installer) loadManifest(ctx context.Context, ref, version string) (*manifest.Manifest, error) {
	if isManifestPath(ref) {
		m, err := manifest.LoadFile(ctx, ref)
		if err != nil {
			return nil, stageError(filepath.Base(ref), StageManifest, err)
		}
		return m, nil
	}

	name := ref
	if base, pinned, ok := strings.Cut(ref, "@"); ok {
		name, version = base, pinned
	}
	if err := manifest.ValidatePackageName(name); err != nil {
		return nil, stageError(name, StageManifest, err)
	}
	if i.finder == nil {
		return nil, stageError(name, StageManifest, fmt.Errorf("%w: %s", tap.ErrManifestNotFound, name))
	}

	path, err := i.finder.Find(name, version)
	if err != nil {
		return nil, stageError(name, StageManifest, err)
	}
	m, err := manifest.LoadFile(ctx, path)
	if err != nil {
		return nil, stageError(name, StageManifest, err)
	}
	if m.Name != name {
		return nil, stageError(name, StageManifest, fmt.Errorf("%s declares package %q", path, m.Name))
	}
	if version != "" && m.Version != "" && manifest.CompareVersions(m.Version, version) != 0 {
		return nil, stageError(name, StageManifest, fmt.Errorf("%w: %s provides %s, want %s", ErrVersionUnavailable, path, m.Version, version))
	}
	return m, nil
}

// isManifestPath reports whether ref names a manifest file rather than a
// package.
func isManifestPath(ref string) bool {
	if strings.ContainsRune(ref, os.PathSeparator) || strings.ContainsRune(ref, '/') {
		return true
	}
	if _, err := manifest.FormatFromPath(ref); err != nil {
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && info.Mode().IsRegular()
}

// installedRecord returns pkg's record, or nil when it is not installed.
func (i *Installer) installedRecord(pkg string) (*record.Record, error) {
	rec, err := i.records.Get(pkg)
	if errors.Is(err, record.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}
