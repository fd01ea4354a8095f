// Package shell knows where each shell looks for completion scripts and how
// to make keg's directories visible to an interactive shell.
//
// # Completion directories
//
// CompletionDir returns the per-user completion directory of a shell under
// an install prefix:
//   - bash: <prefix>/share/bash-completion/completions
//   - zsh:  <prefix>/share/zsh/site-functions
//   - fish: <prefix>/share/fish/vendor_completions.d
//
// bash-completion and fish find these directories on their own when the
// prefix is ~/.local. zsh needs the directory on $fpath.
//
// # Shell Detection
//
// DetectShell tries $SHELL first and falls back to the name of the parent
// process, read with gopsutil.
//
// # RC File Management
//
// `keg shell setup` appends one line to the shell's rc file:
//
//	eval "$(keg shell-env zsh)"
//
// and `keg shell-env` prints the PATH and fpath exports for the configured
// directories. Modifications are idempotent, optionally backed up, and
// written atomically with a temp file and rename.
package shell
