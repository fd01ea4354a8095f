package shell

import (
	"fmt"
	"slices"
	"strings"
)

// ShellType names an interactive shell keg can integrate with.
type ShellType string

const (
	ShellBash    ShellType = "bash"
	ShellZsh     ShellType = "zsh"
	ShellFish    ShellType = "fish"
	ShellUnknown ShellType = "unknown"
)

var supportedShells = []ShellType{ShellBash, ShellZsh, ShellFish}

func (s ShellType) String() string {
	return string(s)
}

// IsValid reports whether keg knows how to activate itself in s.
func (s ShellType) IsValid() bool {
	return slices.Contains(supportedShells, s)
}

// Config configures a Manager. Program is the command written into rc
// files ("keg" when empty); Home replaces the user's home directory.
type Config struct {
	Program string
	Home    string
}

// SetupOptions controls SetupIntegration.
type SetupOptions struct {
	Force  bool // append even when an activation line is present
	Backup bool // copy the rc file to <rc>.keg-backup first
	DryRun bool
}

// SetupResult describes what SetupIntegration did, or would do on a dry run.
type SetupResult struct {
	Shell             ShellType
	RCFile            string
	ActivationCommand string
	BackupPath        string
	Added             bool
	AlreadyPresent    bool
}

// DetectionSource says where DetectShell found the shell.
type DetectionSource string

const (
	SourceEnv    DetectionSource = "$SHELL"
	SourceParent DetectionSource = "parent process"
	SourceNone   DetectionSource = ""
)

// Detection is the outcome of DetectShell. Shell is ShellUnknown and Source
// is SourceNone when nothing supported was found.
type Detection struct {
	Shell  ShellType
	Source DetectionSource
	Path   string // shell binary, or the parent's executable
}

type UnsupportedShellError struct {
	Shell string
}

func (e *UnsupportedShellError) Error() string {
	names := make([]string, len(supportedShells))
	for i, s := range supportedShells {
		names[i] = s.String()
	}
	return fmt.Sprintf("unsupported shell %q (keg supports %s)", e.Shell, strings.Join(names, ", "))
}

// RCFileError reports a failed operation on a shell rc file.
type RCFileError struct {
	Path string
	Op   string
	Err  error
}

func (e *RCFileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Path, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *RCFileError) Unwrap() error {
	return e.Err
}
