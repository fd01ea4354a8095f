package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/ZebulonRouseFrantzich/keg/internal/fetch"
	"github.com/ZebulonRouseFrantzich/keg/internal/guard"
	"github.com/ZebulonRouseFrantzich/keg/internal/install"
	"github.com/ZebulonRouseFrantzich/keg/internal/platform"
	"github.com/ZebulonRouseFrantzich/keg/internal/service"
	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// Process exit codes.
const (
	exitOK         = 0
	exitFailure    = 1 // resolution, conflict, integrity or validation failure
	exitFilesystem = 2 // filesystem or permission failure
	exitNetwork    = 3 // network failure after retries
)

// exitCode classifies err into a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	// A failed rollback reports the failure that caused it.
	var rollback *install.RollbackError
	if errors.As(err, &rollback) {
		return exitCode(rollback.Cause)
	}

	var (
		permission  *install.PermissionError
		unsupported *platform.UnsupportedPlatformError
		conflict    *guard.ConflictError
		integrity   *fetch.IntegrityError
		signature   *fetch.SignatureError
		missing     *install.EntryMissingError
		pathErr     *fs.PathError
		linkErr     *os.LinkError
	)
	switch {
	case fetch.IsNetwork(err):
		return exitNetwork
	case errors.As(err, &permission),
		service.StageOf(err) == service.StageLock,
		errors.Is(err, transaction.ErrLockExists),
		errors.Is(err, fs.ErrPermission):
		return exitFilesystem
	case errors.As(err, &unsupported),
		errors.As(err, &conflict),
		errors.Is(err, fetch.ErrNotReleasable),
		errors.As(err, &integrity),
		errors.As(err, &signature),
		errors.As(err, &missing),
		errors.Is(err, fs.ErrNotExist):
		return exitFailure
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		return exitFilesystem
	default:
		return exitFailure
	}
}
