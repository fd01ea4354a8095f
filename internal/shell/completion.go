package shell

import (
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// CompletionDir returns the completion directory for shell under prefix, or
// "" for unsupported shells.
func CompletionDir(shell ShellType, prefix string) string {
	switch shell {
	case ShellBash:
		return filepath.Join(prefix, "share", "bash-completion", "completions")
	case ShellZsh:
		return filepath.Join(prefix, "share", "zsh", "site-functions")
	case ShellFish:
		return filepath.Join(prefix, "share", "fish", "vendor_completions.d")
	default:
		return ""
	}
}

// CompletionKind maps a shell to the destination kind of its completion script.
func CompletionKind(shell ShellType) (manifest.DestinationKind, bool) {
	switch shell {
	case ShellBash:
		return manifest.KindCompletionBash, true
	case ShellZsh:
		return manifest.KindCompletionZsh, true
	case ShellFish:
		return manifest.KindCompletionFish, true
	default:
		return "", false
	}
}
