package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/keg/internal/fetch"
	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// BackupSuffix is appended to a destination that is moved aside during an
// operation.
const BackupSuffix = ".keg-backup"

// Options configures an Executor.
type Options struct {
	Layout     Layout
	JournalDir string
	Records    *record.Store
	Logger     *slog.Logger
	// TempDir is the parent of extraction workspaces; empty uses os.TempDir.
	TempDir string
}

// Executor installs and removes package files.
type Executor struct {
	layout     Layout
	journalDir string
	records    *record.Store
	logger     *slog.Logger
	tempDir    string
}

// NewExecutor validates opts and returns an Executor.
func NewExecutor(opts Options) (*Executor, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if opts.JournalDir == "" {
		return nil, fmt.Errorf("journal directory is required")
	}
	if opts.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		layout:     opts.Layout,
		journalDir: opts.JournalDir,
		records:    opts.Records,
		logger:     logger,
		tempDir:    opts.TempDir,
	}, nil
}

// Layout returns the executor's directory map.
func (e *Executor) Layout() Layout {
	return e.layout
}

// step is one planned copy.
type step struct {
	rule manifest.InstallRule
	src  string
	dest string
	mode fs.FileMode
}

// Install extracts archive and applies the install rules of m. Either every
// rule is applied and a record is persisted, or the destination set is
// restored to its pre-install state.
func (e *Executor) Install(ctx context.Context, m *manifest.Manifest, v *manifest.Variant, archive *fetch.Archive) (*record.Record, error) {
	if m == nil || v == nil || archive == nil {
		return nil, fmt.Errorf("manifest, variant and archive are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workspace, err := os.MkdirTemp(e.tempDir, "keg-install-*")
	if err != nil {
		return nil, classify(m.Name, e.tempDir, fmt.Errorf("create workspace: %w", err))
	}
	defer os.RemoveAll(workspace)

	if err := extract(archive.Path, workspace); err != nil {
		return nil, err
	}

	steps, err := e.plan(m, workspace)
	if err != nil {
		return nil, err
	}

	journal := transaction.NewJournal(transaction.OperationInstall, m.Name, m.Version)
	if err := journal.Save(e.journalDir); err != nil {
		return nil, classify(m.Name, e.journalDir, err)
	}

	rec, err := e.apply(ctx, m, v, archive, journal, steps)
	if err != nil {
		return nil, e.abort(journal, err)
	}

	if err := transaction.RemoveJournal(e.journalDir, m.Name); err != nil {
		e.logger.Warn("failed to remove journal", "package", m.Name, "error", err)
	}
	dropBackups(journal, e.logger)

	e.logger.Debug("installed package", "package", m.Name, "version", m.Version, "files", len(rec.Files))
	return rec, nil
}

// plan resolves every rule before anything is written.
func (e *Executor) plan(m *manifest.Manifest, workspace string) ([]step, error) {
	root := archiveRoot(workspace)
	steps := make([]step, 0, len(m.InstallRules))
	seen := make(map[string]string, len(m.InstallRules))

	for _, rule := range m.InstallRules {
		src, err := locate(workspace, root, rule.From)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &EntryMissingError{Package: m.Name, From: rule.From}
			}
			return nil, err
		}

		dest, err := e.layout.Destination(rule)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[dest]; dup {
			return nil, fmt.Errorf("%s: rules for %q and %q both install to %s", m.Name, prev, rule.From, dest)
		}
		seen[dest] = rule.From

		mode := fs.FileMode(0644)
		if rule.Kind == manifest.KindBinary {
			mode = 0755
		}
		steps = append(steps, step{rule: rule, src: src, dest: dest, mode: mode})
	}
	return steps, nil
}

// apply performs the planned copies and persists the record.
func (e *Executor) apply(ctx context.Context, m *manifest.Manifest, v *manifest.Variant, archive *fetch.Archive, journal *transaction.Journal, steps []step) (*record.Record, error) {
	rec := &record.Record{
		Schema:  record.SchemaVersion,
		Package: m.Name,
		Version: m.Version,
		Variant: record.Variant{
			OS:     v.OS,
			Arch:   v.Architecture(),
			URL:    archive.URL,
			SHA256: archive.SHA256,
		},
		Files: make([]record.File, 0, len(steps)),
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.place(m.Name, journal, s); err != nil {
			return nil, err
		}

		sum, err := record.HashFile(s.dest)
		if err != nil {
			return nil, classify(m.Name, s.dest, fmt.Errorf("hash %s: %w", s.dest, err))
		}
		rec.Files = append(rec.Files, record.File{Path: s.dest, Kind: s.rule.Kind, SHA256: sum, Mode: s.mode})
		e.logger.Debug("installed file", "package", m.Name, "kind", s.rule.Kind, "path", s.dest)
	}

	if err := e.records.Put(rec); err != nil {
		return nil, classify(m.Name, e.records.Dir(), err)
	}
	return rec, nil
}

// place journals s.dest, moves any existing file aside and copies s.src in.
func (e *Executor) place(pkg string, journal *transaction.Journal, s step) error {
	backup := ""
	info, err := os.Lstat(s.dest)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("%s: destination %s is a directory", pkg, s.dest)
		}
		backup = s.dest + BackupSuffix
	case !errors.Is(err, fs.ErrNotExist):
		return classify(pkg, s.dest, fmt.Errorf("stat %s: %w", s.dest, err))
	}

	journal.Add(s.dest, backup)
	if err := journal.Save(e.journalDir); err != nil {
		return classify(pkg, e.journalDir, err)
	}

	if backup != "" {
		if err := os.Rename(s.dest, backup); err != nil {
			return classify(pkg, s.dest, fmt.Errorf("back up %s: %w", s.dest, err))
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.dest), 0755); err != nil {
		return classify(pkg, s.dest, fmt.Errorf("create directory for %s: %w", s.dest, err))
	}
	if err := copyFile(s.src, s.dest, s.mode); err != nil {
		return classify(pkg, s.dest, fmt.Errorf("install %s: %w", s.dest, err))
	}

	journal.SetState(s.dest, transaction.StateCompleted, nil)
	return nil
}

// abort rolls back journal and combines cause with any rollback failures.
func (e *Executor) abort(journal *transaction.Journal, cause error) error {
	e.logger.Debug("rolling back", "package", journal.Package, "operation", journal.Operation, "error", cause)
	if failures := e.rollback(journal); len(failures) > 0 {
		return &RollbackError{Cause: cause, Failures: failures}
	}
	return cause
}

// rollback undoes journaled entries, most recent first. Fully rolled back
// journals are removed; otherwise the journal is kept for Recover.
func (e *Executor) rollback(journal *transaction.Journal) []error {
	var failures []error
	for _, entry := range journal.Pending() {
		if err := restore(entry); err != nil {
			failures = append(failures, err)
			journal.SetState(entry.Path, transaction.StateFailed, err)
			continue
		}
		journal.SetState(entry.Path, transaction.StateRolledBack, nil)
	}

	if len(failures) > 0 {
		if err := journal.Save(e.journalDir); err != nil {
			failures = append(failures, err)
		}
		return failures
	}
	if err := transaction.RemoveJournal(e.journalDir, journal.Package); err != nil {
		return []error{err}
	}
	return nil
}

// restore returns one destination to its pre-operation state. A missing
// backup means the original was never moved.
func restore(entry transaction.Entry) error {
	if entry.Backup == "" {
		if err := os.Remove(entry.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", entry.Path, err)
		}
		return nil
	}

	if _, err := os.Lstat(entry.Backup); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat backup %s: %w", entry.Backup, err)
	}
	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", entry.Path, err)
	}
	if err := os.Rename(entry.Backup, entry.Path); err != nil {
		return fmt.Errorf("restore %s: %w", entry.Path, err)
	}
	return nil
}

func dropBackups(journal *transaction.Journal, logger *slog.Logger) {
	for _, entry := range journal.Entries {
		if entry.Backup == "" {
			continue
		}
		if err := os.Remove(entry.Backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove backup", "path", entry.Backup, "error", err)
		}
	}
}

// archiveRoot returns the single top-level directory of an extracted
// archive, or workspace itself when the archive is flat.
func archiveRoot(workspace string) string {
	entries, err := os.ReadDir(workspace)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return workspace
	}
	return filepath.Join(workspace, entries[0].Name())
}

// locate finds from in the workspace, trying the archive root as well. The
// result is a regular file inside the workspace.
func locate(workspace, root, from string) (string, error) {
	candidates := []string{filepath.Join(workspace, filepath.FromSlash(from))}
	if root != workspace {
		candidates = append(candidates, filepath.Join(root, filepath.FromSlash(from)))
	}

	for _, c := range candidates {
		resolved, err := filepath.EvalSymlinks(c)
		if err != nil {
			continue
		}
		realWorkspace, err := filepath.EvalSymlinks(workspace)
		if err != nil {
			return "", err
		}
		if !within(realWorkspace, resolved) {
			return "", fmt.Errorf("archive entry %s resolves outside the archive", from)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("archive entry %s is not a regular file", from)
		}
		return resolved, nil
	}
	return "", fs.ErrNotExist
}

// copyFile copies src to dest through a temporary sibling and rename.
func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".keg-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
