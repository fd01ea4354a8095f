package manifest

import (
	"fmt"
	"path"
	"strings"
)

// OS is the platform predicate of a variant.
type OS string

const (
	// OSMacOS matches Apple macOS hosts (GOOS "darwin").
	OSMacOS OS = "macos"
	// OSLinux matches Linux hosts.
	OSLinux OS = "linux"
)

// String returns the string representation of the OS
func (o OS) String() string {
	return string(o)
}

// IsValid reports whether o is a supported platform predicate.
func (o OS) IsValid() bool {
	switch o {
	case OSMacOS, OSLinux:
		return true
	default:
		return false
	}
}

// osAliases maps the spellings found in release names and formulas to OS values.
var osAliases = map[string]OS{
	"macos":  OSMacOS,
	"mac":    OSMacOS,
	"osx":    OSMacOS,
	"darwin": OSMacOS,
	"linux":  OSLinux,
}

// ParseOS normalizes an OS string ("darwin", "mac", "Linux", ...).
func ParseOS(s string) (OS, error) {
	if o, ok := osAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return o, nil
	}
	return "", fmt.Errorf("unsupported os %q (supported: macos, linux)", s)
}

// DestinationKind selects the target directory an install rule writes to.
type DestinationKind string

const (
	KindBinary         DestinationKind = "binary"
	KindManPage        DestinationKind = "man_page"
	KindCompletionBash DestinationKind = "completion_bash"
	KindCompletionZsh  DestinationKind = "completion_zsh"
	KindCompletionFish DestinationKind = "completion_fish"
)

// Kinds returns every destination kind in a stable order.
func Kinds() []DestinationKind {
	return []DestinationKind{
		KindBinary,
		KindManPage,
		KindCompletionBash,
		KindCompletionZsh,
		KindCompletionFish,
	}
}

// String returns the string representation of the kind
func (k DestinationKind) String() string {
	return string(k)
}

// IsValid reports whether k is a known destination kind.
func (k DestinationKind) IsValid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsCompletion reports whether k is one of the shell completion kinds.
func (k DestinationKind) IsCompletion() bool {
	return k == KindCompletionBash || k == KindCompletionZsh || k == KindCompletionFish
}

// DefaultArch is the architecture assumed when a variant does not name one.
const DefaultArch = "x86_64"

// NormalizeArch maps GOARCH and release-style architecture names to the
// canonical names used in manifests ("x86_64", "arm64").
func NormalizeArch(arch string) string {
	a := strings.ToLower(strings.TrimSpace(arch))
	switch a {
	case "":
		return ""
	case "amd64", "x86_64", "x64", "x86-64":
		return "x86_64"
	case "arm64", "aarch64":
		return "arm64"
	case "386", "i386", "i686", "x86":
		return "i686"
	default:
		return a
	}
}

// Manifest is a versioned description of one tool release.
type Manifest struct {
	Name         string        `json:"name" yaml:"name"`
	Version      string        `json:"version" yaml:"version"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage     string        `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Variants     []Variant     `json:"variants" yaml:"variants"`
	Conflicts    []string      `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	InstallRules []InstallRule `json:"install_rules,omitempty" yaml:"install_rules,omitempty"`
}

// Variant is a platform-specific release artifact reference.
type Variant struct {
	OS           OS     `json:"os" yaml:"os"`
	Arch         string `json:"arch,omitempty" yaml:"arch,omitempty"`
	URLTemplate  string `json:"url_template" yaml:"url_template"`
	SHA256       string `json:"sha256" yaml:"sha256"`
	SignatureURL string `json:"signature_url,omitempty" yaml:"signature_url,omitempty"`
}

// InstallRule maps an archive entry to a destination kind.
type InstallRule struct {
	From string          `json:"from" yaml:"from"`
	Kind DestinationKind `json:"kind" yaml:"kind"`
	As   string          `json:"as,omitempty" yaml:"as,omitempty"`
}

// DestName returns the file name the rule installs under.
func (r InstallRule) DestName() string {
	if r.As != "" {
		return r.As
	}
	return path.Base(r.From)
}

// Architecture returns the variant's canonical architecture, defaulting to
// DefaultArch.
func (v Variant) Architecture() string {
	if a := NormalizeArch(v.Arch); a != "" {
		return a
	}
	return DefaultArch
}

// Key identifies the variant's predicate as "os/arch".
func (v Variant) Key() string {
	return v.OS.String() + "/" + v.Architecture()
}

// versionPlaceholders are substituted with the manifest version. The Ruby
// style "#{version}" is accepted for formulas ported from Homebrew.
var versionPlaceholders = []string{"#{version}", "{version}"}

// HasVersionPlaceholder reports whether the URL template references the version.
func (v Variant) HasVersionPlaceholder() bool {
	for _, p := range versionPlaceholders {
		if strings.Contains(v.URLTemplate, p) {
			return true
		}
	}
	return false
}

// URL substitutes version, arch and os into the URL template.
func (v Variant) URL(version string) string {
	u := v.URLTemplate
	for _, p := range versionPlaceholders {
		u = strings.ReplaceAll(u, p, version)
	}
	u = strings.ReplaceAll(u, "{arch}", v.Architecture())
	u = strings.ReplaceAll(u, "{os}", v.OS.String())
	return u
}

// SignatureLocation returns the concrete signature URL, or "" when the
// variant has none.
func (v Variant) SignatureLocation(version string) string {
	if v.SignatureURL == "" {
		return ""
	}
	sig := v
	sig.URLTemplate = v.SignatureURL
	return sig.URL(version)
}

// IsDraft reports whether the variant's digest is empty or a placeholder.
func (v Variant) IsDraft() bool {
	return IsPlaceholderDigest(v.SHA256)
}

// IsPlaceholderDigest reports whether a digest field has not been populated
// by the release pipeline yet.
func IsPlaceholderDigest(digest string) bool {
	d := strings.ToLower(strings.TrimSpace(digest))
	switch d {
	case "", "tbd", "todo", "placeholder", "none":
		return true
	}
	return d == strings.Repeat("0", 64)
}

// IsDraft reports whether the manifest cannot be installed yet: it has no
// version or some variant has no digest.
func (m *Manifest) IsDraft() bool {
	if strings.TrimSpace(m.Version) == "" {
		return true
	}
	for _, v := range m.Variants {
		if v.IsDraft() {
			return true
		}
	}
	return false
}

// DraftVariants returns the keys of variants that still lack a digest.
func (m *Manifest) DraftVariants() []string {
	var keys []string
	for _, v := range m.Variants {
		if v.IsDraft() {
			keys = append(keys, v.Key())
		}
	}
	return keys
}

// State is a manifest's position in the release lifecycle.
type State int

const (
	StateDraft State = iota
	StateReleasable
	StateInstalled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateDraft:
		return "DRAFT"
	case StateReleasable:
		return "RELEASABLE"
	case StateInstalled:
		return "INSTALLED"
	default:
		return "UNKNOWN"
	}
}

// Lifecycle computes the manifest state given the version currently recorded
// as installed ("" when the package is not installed).
func (m *Manifest) Lifecycle(installedVersion string) State {
	if m.IsDraft() {
		return StateDraft
	}
	if installedVersion != "" && CompareVersions(installedVersion, m.Version) == 0 {
		return StateInstalled
	}
	return StateReleasable
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Variants = append([]Variant(nil), m.Variants...)
	c.Conflicts = append([]string(nil), m.Conflicts...)
	c.InstallRules = append([]InstallRule(nil), m.InstallRules...)
	return &c
}

// Normalize canonicalizes OS aliases, architecture names, digests and the
// conflict set. Unknown OS values are kept so Validate can report them.
func (m *Manifest) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Version = strings.TrimSpace(m.Version)
	for i := range m.Variants {
		v := &m.Variants[i]
		if o, err := ParseOS(string(v.OS)); err == nil {
			v.OS = o
		}
		v.Arch = v.Architecture()
		v.SHA256 = strings.ToLower(strings.TrimSpace(v.SHA256))
	}

	seen := make(map[string]bool, len(m.Conflicts))
	conflicts := m.Conflicts[:0]
	for _, c := range m.Conflicts {
		c = strings.TrimSpace(c)
		if seen[c] {
			continue
		}
		seen[c] = true
		conflicts = append(conflicts, c)
	}
	m.Conflicts = conflicts
}
