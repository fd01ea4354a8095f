package shell

import (
	"fmt"
	"strings"
)

// GenerateActivationCommand returns the line users add to their rc files.
func GenerateActivationCommand(shell ShellType, program string) (string, error) {
	if err := ValidateShell(shell); err != nil {
		return "", err
	}
	if program == "" {
		program = "keg"
	}

	switch shell {
	case ShellBash, ShellZsh:
		return fmt.Sprintf(`eval "$(%s shell-env %s)"`, program, shell), nil
	case ShellFish:
		return fmt.Sprintf("%s shell-env %s | source", program, shell), nil
	default:
		return "", &UnsupportedShellError{Shell: shell.String()}
	}
}

// GenerateEnv renders the statements that put binDir on PATH and, for zsh and
// fish, completionDir on the completion search path.
func GenerateEnv(shell ShellType, binDir, completionDir string) (string, error) {
	if err := ValidateShell(shell); err != nil {
		return "", err
	}

	var b strings.Builder
	switch shell {
	case ShellBash:
		fmt.Fprintf(&b, "case \":$PATH:\" in *:%s:*) ;; *) export PATH=%s:\"$PATH\" ;; esac\n",
			binDir, shellQuote(binDir))
	case ShellZsh:
		fmt.Fprintf(&b, "typeset -U path fpath\n")
		fmt.Fprintf(&b, "path=(%s $path)\n", shellQuote(binDir))
		if completionDir != "" {
			fmt.Fprintf(&b, "fpath=(%s $fpath)\n", shellQuote(completionDir))
		}
	case ShellFish:
		fmt.Fprintf(&b, "fish_add_path --prepend %s\n", shellQuote(binDir))
		if completionDir != "" {
			fmt.Fprintf(&b, "contains %s $fish_complete_path; or set -p fish_complete_path %s\n",
				shellQuote(completionDir), shellQuote(completionDir))
		}
	}
	return b.String(), nil
}

// shellQuote single-quotes s for POSIX shells and fish.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
