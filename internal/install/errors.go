package install

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// EntryMissingError reports an install rule whose source is not in the archive.
type EntryMissingError struct {
	Package string
	From    string
}

func (e *EntryMissingError) Error() string {
	return fmt.Sprintf("%s: archive has no entry %q", e.Package, e.From)
}

// PermissionError reports a destination keg is not allowed to write.
type PermissionError struct {
	Package string
	Path    string
	Err     error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: permission denied writing %s: %v", e.Package, e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// RollbackError reports a failed operation whose rollback also failed.
// Unwrap yields the primary cause first, then each rollback failure.
type RollbackError struct {
	Cause    error
	Failures []error
}

func (e *RollbackError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%v (rollback incomplete: %s)", e.Cause, strings.Join(msgs, "; "))
}

func (e *RollbackError) Unwrap() []error {
	return append([]error{e.Cause}, e.Failures...)
}

// ExtractError reports an archive that could not be unpacked safely.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// classify turns filesystem permission failures into *PermissionError.
func classify(pkg, path string, err error) error {
	if err == nil {
		return nil
	}
	var perm *PermissionError
	if errors.As(err, &perm) {
		return err
	}
	if errors.Is(err, fs.ErrPermission) {
		return &PermissionError{Package: pkg, Path: path, Err: err}
	}
	return err
}
