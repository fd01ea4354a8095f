package service

import (
	"context"
	"errors"

	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// RecoverAll finishes or rolls back every operation an earlier run left
// unfinished, holding each package's lock while it does. Packages locked by
// a running operation are skipped.
func (i *Installer) RecoverAll(ctx context.Context) ([]string, error) {
	pending, err := i.executor.Pending()
	if err != nil {
		return nil, err
	}

	var recovered []string
	var errs []error
	for _, pkg := range pending {
		lock, err := transaction.AcquireLock(ctx, i.locksDir, pkg)
		if errors.Is(err, transaction.ErrLockExists) {
			i.logger.Debug("skipping recovery of locked package", "package", pkg)
			continue
		}
		if err != nil {
			errs = append(errs, stageError(pkg, StageLock, err))
			continue
		}

		ok, err := i.executor.Recover(ctx, pkg)
		if releaseErr := lock.Release(); releaseErr != nil {
			i.logger.Warn("failed to release lock", "package", pkg, "error", releaseErr)
		}
		if err != nil {
			errs = append(errs, stageError(pkg, StageInstall, err))
			continue
		}
		if ok {
			i.logger.Info("recovered interrupted operation", "package", pkg)
			recovered = append(recovered, pkg)
		}
	}
	return recovered, errors.Join(errs...)
}
