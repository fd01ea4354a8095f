package service

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// UpgradeOptions controls Upgrade.
type UpgradeOptions struct {
	// To pins the target version. Empty takes whatever the manifest offers.
	To string
	// Manifest installs from this file instead of looking the package up.
	Manifest string
	// Force reinstalls when the target version is already installed.
	Force bool
	// AllowDowngrade permits a target lower than the installed version.
	AllowDowngrade bool
}

// Upgrade replaces the installed version of pkg. The new version is
// resolved, guarded, fetched and verified before anything on disk changes;
// it is then installed over the old files, and files only the old version
// listed are removed last.
func (i *Installer) Upgrade(ctx context.Context, pkg string, opts UpgradeOptions) (*Result, error) {
	start := i.clock.Now()

	ref := pkg
	if opts.Manifest != "" {
		ref = opts.Manifest
	}
	m, err := i.loadManifest(ctx, ref, opts.To)
	if err != nil {
		return nil, err
	}
	if m.Name != pkg {
		return nil, stageError(pkg, StageManifest, fmt.Errorf("manifest describes %q", m.Name))
	}
	if opts.To != "" && manifest.CompareVersions(m.Version, opts.To) != 0 {
		return nil, stageError(pkg, StageManifest, fmt.Errorf("%w: manifest provides %q, want %s", ErrVersionUnavailable, m.Version, opts.To))
	}

	var result *Result
	err = i.withLock(ctx, pkg, func() error {
		old, err := i.records.Get(pkg)
		if err != nil {
			return stageError(pkg, StageInstall, err)
		}

		switch cmp := manifest.CompareVersions(m.Version, old.Version); {
		case cmp == 0 && !opts.Force:
			result = &Result{Package: pkg, Version: old.Version, Previous: old.Version, Record: old, Unchanged: true}
			return nil
		case cmp < 0 && !opts.AllowDowngrade:
			return stageError(pkg, StageManifest, fmt.Errorf("%w: installed %s is newer than %s", ErrDowngrade, old.Version, m.Version))
		}

		rec, archive, err := i.run(ctx, m)
		if err != nil {
			return err
		}
		if err := i.dropStale(old, rec); err != nil {
			return err
		}
		result = &Result{Package: pkg, Version: rec.Version, Previous: old.Version, Record: rec, Archive: archive}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Elapsed = i.clock.Now().Sub(start)
	if !result.Unchanged {
		i.logger.Info("upgraded", "package", pkg, "from", result.Previous, "to", result.Version)
	}
	return result, nil
}
