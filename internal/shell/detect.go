package shell

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// parentProcess reports the parent's name and executable path. Tests replace it.
var parentProcess = func(ctx context.Context) (string, string, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getppid()))
	if err != nil {
		return "", "", err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", "", err
	}
	exe, _ := p.ExeWithContext(ctx)
	return name, exe, nil
}

// DetectShell looks at $SHELL first and falls back to the parent process.
func DetectShell(ctx context.Context) *Detection {
	if path := os.Getenv("SHELL"); path != "" {
		if shell := parseShellFromPath(path); shell.IsValid() {
			return &Detection{Shell: shell, Source: SourceEnv, Path: path}
		}
	}

	if shell, path := detectFromParentProcess(ctx); shell.IsValid() {
		return &Detection{Shell: shell, Source: SourceParent, Path: path}
	}

	return &Detection{Shell: ShellUnknown, Source: SourceNone}
}

// parseShellFromPath extracts the shell type from a shell binary path
// Examples:
//   - /bin/bash -> bash
//   - /usr/bin/zsh -> zsh
//   - -zsh (login shell) -> zsh
func parseShellFromPath(shellPath string) ShellType {
	baseName := strings.ToLower(filepath.Base(shellPath))
	baseName = strings.TrimPrefix(baseName, "-")

	switch baseName {
	case "bash":
		return ShellBash
	case "zsh":
		return ShellZsh
	case "fish":
		return ShellFish
	default:
		return ShellUnknown
	}
}

// detectFromParentProcess asks gopsutil for the parent process name.
func detectFromParentProcess(ctx context.Context) (ShellType, string) {
	name, exe, err := parentProcess(ctx)
	if err != nil {
		return ShellUnknown, ""
	}
	shellType := parseShellFromPath(name)
	if exe == "" {
		exe = name
	}
	return shellType, exe
}

// ValidateShell validates that a shell type is supported
func ValidateShell(shell ShellType) error {
	if !shell.IsValid() {
		return &UnsupportedShellError{Shell: shell.String()}
	}
	return nil
}

// GetSupportedShells returns a list of supported shells
func GetSupportedShells() []ShellType {
	return slices.Clone(supportedShells)
}
