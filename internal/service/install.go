package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/keg/internal/fetch"
	"github.com/ZebulonRouseFrantzich/keg/internal/guard"
	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/platform"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
)

// Result describes a completed install or upgrade.
type Result struct {
	Package string
	Version string
	// Previous is the version that was installed before, if any.
	Previous string
	Record   *record.Record
	Archive  *fetch.Archive
	// Unchanged is true when the requested version was already installed
	// and nothing was done.
	Unchanged bool
	Elapsed   time.Duration
}

// Install installs ref, a manifest path or a package name (optionally
// name@version) looked up in the taps. Installing over another version of
// the same package removes files the new version no longer ships.
func (i *Installer) Install(ctx context.Context, ref string) (*Result, error) {
	start := i.clock.Now()

	m, err := i.loadManifest(ctx, ref, "")
	if err != nil {
		return nil, err
	}

	var result *Result
	err = i.withLock(ctx, m.Name, func() error {
		old, err := i.installedRecord(m.Name)
		if err != nil {
			return stageError(m.Name, StageInstall, err)
		}

		rec, archive, err := i.run(ctx, m)
		if err != nil {
			return err
		}
		if err := i.dropStale(old, rec); err != nil {
			return err
		}

		result = &Result{Package: m.Name, Version: m.Version, Record: rec, Archive: archive}
		if old != nil {
			result.Previous = old.Version
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Elapsed = i.clock.Now().Sub(start)
	i.logger.Info("installed", "package", result.Package, "version", result.Version, "files", len(result.Record.Files))
	return result, nil
}

// InstallAll installs independent packages in parallel. Every ref is
// attempted; results has one entry per distinct ref (nil on failure) and the
// returned error joins the individual failures.
func (i *Installer) InstallAll(ctx context.Context, refs []string) ([]*Result, error) {
	refs = distinct(refs)
	results := make([]*Result, len(refs))
	errs := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(i.parallelism)
	for idx, ref := range refs {
		g.Go(func() error {
			results[idx], errs[idx] = i.Install(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// run executes resolve, conflict, fetch and install for m. It must be
// called with m's lock held.
func (i *Installer) run(ctx context.Context, m *manifest.Manifest) (*record.Record, *fetch.Archive, error) {
	host, err := i.detector.Detect(ctx)
	if err != nil {
		return nil, nil, stageError(m.Name, StageResolve, err)
	}
	variant, err := platform.Resolve(m, host)
	if err != nil {
		return nil, nil, stageError(m.Name, StageResolve, err)
	}
	i.logger.Debug("resolved variant", "package", m.Name, "host", host.String(), "variant", variant.Key())

	if err := guard.Check(ctx, m, i.installed); err != nil {
		return nil, nil, stageError(m.Name, StageConflict, err)
	}

	archive, err := i.fetcher.FetchAndVerify(ctx, m, variant)
	if err != nil {
		return nil, nil, stageError(m.Name, StageFetch, err)
	}
	i.logger.Debug("archive verified", "package", m.Name, "sha256", archive.SHA256, "cached", archive.Cached)

	rec, err := i.executor.Install(ctx, m, variant, archive)
	if err != nil {
		return nil, nil, stageError(m.Name, StageInstall, err)
	}
	return rec, archive, nil
}

// dropStale removes files of the replaced record that the new record does
// not list. A reinstall of the same version can still drop files when the
// install rules changed.
func (i *Installer) dropStale(old, rec *record.Record) error {
	if old == nil {
		return nil
	}
	if err := i.executor.RemoveStale(old, rec); err != nil {
		return stageError(rec.Package, StageInstall, err)
	}
	return nil
}

func distinct(refs []string) []string {
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}
