package service

import (
	"errors"
	"fmt"
)

// Stage names a step of the install pipeline.
type Stage string

const (
	StageLock      Stage = "lock"
	StageManifest  Stage = "manifest"
	StageResolve   Stage = "resolve"
	StageConflict  Stage = "conflict"
	StageFetch     Stage = "fetch"
	StageInstall   Stage = "install"
	StageUninstall Stage = "uninstall"
	StageVerify    Stage = "verify"
)

var (
	// ErrDowngrade is returned when an upgrade would lower the installed
	// version and downgrades were not allowed.
	ErrDowngrade = errors.New("refusing to downgrade")
	// ErrVersionUnavailable is returned when the manifest found for a
	// package does not carry the requested version.
	ErrVersionUnavailable = errors.New("requested version is not available")
)

// StageError names the package and pipeline stage an error came from.
type StageError struct {
	Package string
	Stage   Stage
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Package, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(pkg string, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Package: pkg, Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "" if there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
