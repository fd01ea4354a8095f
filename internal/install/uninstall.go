package install

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ZebulonRouseFrantzich/keg/internal/record"
	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// Uninstall removes the files of rec and deletes its record. Files that are
// already gone are skipped. On failure the removed files are put back.
func (e *Executor) Uninstall(ctx context.Context, rec *record.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}

	journal := transaction.NewJournal(transaction.OperationUninstall, rec.Package, rec.Version)
	if err := journal.Save(e.journalDir); err != nil {
		return classify(rec.Package, e.journalDir, err)
	}

	if err := e.moveAside(ctx, rec, journal); err != nil {
		return e.abort(journal, err)
	}

	if err := e.records.Delete(rec.Package); err != nil {
		return e.abort(journal, classify(rec.Package, e.records.Dir(), err))
	}

	if err := transaction.RemoveJournal(e.journalDir, rec.Package); err != nil {
		e.logger.Warn("failed to remove journal", "package", rec.Package, "error", err)
	}
	dropBackups(journal, e.logger)

	e.logger.Debug("uninstalled package", "package", rec.Package, "version", rec.Version)
	return nil
}

// RemoveStale deletes files of old that newer does not also own. It is used
// after an upgrade has installed newer over old.
func (e *Executor) RemoveStale(old, newer *record.Record) error {
	keep := make(map[string]bool, len(newer.Files))
	for _, p := range newer.Paths() {
		keep[p] = true
	}

	var errs []error
	for _, f := range old.Files {
		if keep[f.Path] {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, classify(old.Package, f.Path, fmt.Errorf("remove %s: %w", f.Path, err)))
			continue
		}
		e.logger.Debug("removed stale file", "package", old.Package, "path", f.Path)
	}
	return errors.Join(errs...)
}

func (e *Executor) moveAside(ctx context.Context, rec *record.Record, journal *transaction.Journal) error {
	for _, f := range rec.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := os.Lstat(f.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				e.logger.Debug("file already removed", "package", rec.Package, "path", f.Path)
				continue
			}
			return classify(rec.Package, f.Path, fmt.Errorf("stat %s: %w", f.Path, err))
		}
		if info.IsDir() {
			return fmt.Errorf("%s: recorded file %s is a directory", rec.Package, f.Path)
		}

		backup := f.Path + BackupSuffix
		journal.Add(f.Path, backup)
		if err := journal.Save(e.journalDir); err != nil {
			return classify(rec.Package, e.journalDir, err)
		}
		if err := os.Rename(f.Path, backup); err != nil {
			return classify(rec.Package, f.Path, fmt.Errorf("remove %s: %w", f.Path, err))
		}
		journal.SetState(f.Path, transaction.StateCompleted, nil)
	}
	return nil
}

// Recover finishes or rolls back an operation on pkg that was interrupted.
// It reports whether a journal was found.
func (e *Executor) Recover(ctx context.Context, pkg string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	journal, err := transaction.LoadJournal(e.journalDir, pkg)
	if errors.Is(err, transaction.ErrNoJournal) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if e.committed(journal) {
		e.logger.Info("completing interrupted operation", "package", pkg, "operation", journal.Operation)
		dropBackups(journal, e.logger)
		return true, transaction.RemoveJournal(e.journalDir, pkg)
	}

	e.logger.Info("rolling back interrupted operation", "package", pkg, "operation", journal.Operation)
	if failures := e.rollback(journal); len(failures) > 0 {
		return true, &RollbackError{
			Cause:    fmt.Errorf("%s: recover interrupted %s", pkg, journal.Operation),
			Failures: failures,
		}
	}
	return true, nil
}

// Pending lists packages whose journal shows an unfinished operation.
func (e *Executor) Pending() ([]string, error) {
	return transaction.PendingJournals(e.journalDir)
}

// committed reports whether the journaled operation reached its commit
// point: for an install, the stored record matches the journal's version and
// the files on disk; for an uninstall, the record is gone.
func (e *Executor) committed(journal *transaction.Journal) bool {
	switch journal.Operation {
	case transaction.OperationUninstall:
		has, err := e.records.Has(journal.Package)
		return err == nil && !has
	case transaction.OperationInstall:
		rec, err := e.records.Get(journal.Package)
		if err != nil || rec.Version != journal.PackageVersion {
			return false
		}
		for _, f := range rec.Files {
			sum, err := record.HashFile(f.Path)
			if err != nil || sum != f.SHA256 {
				return false
			}
		}
		return true
	default:
		return false
	}
}
