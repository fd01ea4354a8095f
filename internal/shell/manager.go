package shell

import (
	"context"
	"fmt"
)

// Manager orchestrates shell integration setup
type Manager struct {
	program string
	home    string
}

// NewManager creates a new shell manager
func NewManager(config Config) (*Manager, error) {
	program := config.Program
	if program == "" {
		program = "keg"
	}
	if !validProgram(program) {
		return nil, fmt.Errorf("invalid program name %q", program)
	}

	return &Manager{
		program: program,
		home:    config.Home,
	}, nil
}

// SetupIntegration adds the activation line to the shell's rc file.
func (m *Manager) SetupIntegration(shell ShellType, opts SetupOptions) (*SetupResult, error) {
	if err := ValidateShell(shell); err != nil {
		return nil, err
	}

	rc, err := LocateRCFile(shell, m.home)
	if err != nil {
		return nil, fmt.Errorf("locate rc file: %w", err)
	}

	activationCmd, err := GenerateActivationCommand(shell, m.program)
	if err != nil {
		return nil, fmt.Errorf("generate activation command: %w", err)
	}

	content, err := rc.read()
	if err != nil {
		return nil, fmt.Errorf("check rc file: %w", err)
	}

	result := &SetupResult{
		Shell:             shell,
		RCFile:            rc.Path,
		AlreadyPresent:    content.activated(),
		ActivationCommand: activationCmd,
	}

	if (result.AlreadyPresent && !opts.Force) || opts.DryRun {
		return result, nil
	}

	if content.exists && opts.Backup {
		result.BackupPath, err = rc.Backup()
		if err != nil {
			return nil, fmt.Errorf("backup rc file: %w", err)
		}
	}

	if err := rc.Append(activationCmd); err != nil {
		return nil, fmt.Errorf("add activation line: %w", err)
	}
	result.Added = true
	return result, nil
}

// DetectAndSetup detects the user's shell and sets up integration
func (m *Manager) DetectAndSetup(ctx context.Context, opts SetupOptions) (*SetupResult, error) {
	detection := DetectShell(ctx)
	if !detection.Shell.IsValid() {
		return nil, &UnsupportedShellError{Shell: detection.Path}
	}

	return m.SetupIntegration(detection.Shell, opts)
}
