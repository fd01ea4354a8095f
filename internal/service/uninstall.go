package service

import (
	"context"

	"github.com/ZebulonRouseFrantzich/keg/internal/drift"
	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
)

// Uninstall removes pkg's recorded files and its record.
func (i *Installer) Uninstall(ctx context.Context, pkg string) (*record.Record, error) {
	if err := manifest.ValidatePackageName(pkg); err != nil {
		return nil, stageError(pkg, StageUninstall, err)
	}

	var removed *record.Record
	err := i.withLock(ctx, pkg, func() error {
		rec, err := i.records.Get(pkg)
		if err != nil {
			return stageError(pkg, StageUninstall, err)
		}
		if err := i.executor.Uninstall(ctx, rec); err != nil {
			return stageError(pkg, StageUninstall, err)
		}
		removed = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("uninstalled", "package", pkg, "version", removed.Version)
	return removed, nil
}

// Verify compares pkg's installed files with its record.
func (i *Installer) Verify(_ context.Context, pkg string) (*drift.Report, error) {
	rec, err := i.records.Get(pkg)
	if err != nil {
		return nil, stageError(pkg, StageVerify, err)
	}
	return drift.Check(rec, i.active), nil
}
