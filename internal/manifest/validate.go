package manifest

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	// MaxVariantCount bounds the number of platform variants in one manifest.
	MaxVariantCount = 32
	// MaxRuleCount bounds the number of install rules in one manifest.
	MaxRuleCount = 256
	// MaxConflictCount bounds the size of the conflict set.
	MaxConflictCount = 64
	// MaxManifestSize is the largest manifest file accepted (1 MiB).
	MaxManifestSize = 1 << 20
)

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "manifest validation failed for " + e.Field + ": " + e.Message
	}
	return "manifest validation failed: " + e.Message
}

// packageNamePattern matches valid package names: multi-query, ripgrep, yq.v4
var packageNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)

// ValidatePackageName validates a package name.
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("package name too long (%d chars, max 128)", len(name))
	}
	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("invalid package name %q (lowercase letters, digits, '.', '_', '+', '-')", name)
	}
	return nil
}

// Validate checks the manifest's structural invariants. A DRAFT manifest
// (empty version or digests) is valid; installability is checked separately.
func (m *Manifest) Validate() error {
	if err := ValidatePackageName(m.Name); err != nil {
		return &ValidationError{Field: "name", Message: err.Error()}
	}

	if m.Version != "" && !IsValidVersion(m.Version) {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("%q is not a semantic version", m.Version),
		}
	}

	if m.Homepage != "" {
		if err := validateHomepage(m.Homepage); err != nil {
			return &ValidationError{Field: "homepage", Message: err.Error()}
		}
	}

	if err := m.validateVariants(); err != nil {
		return err
	}

	if len(m.Conflicts) > MaxConflictCount {
		return &ValidationError{
			Field:   "conflicts",
			Message: fmt.Sprintf("too many conflicts (%d), maximum is %d", len(m.Conflicts), MaxConflictCount),
		}
	}
	for i, c := range m.Conflicts {
		if err := ValidatePackageName(c); err != nil {
			return &ValidationError{Field: fmt.Sprintf("conflicts[%d]", i), Message: err.Error()}
		}
	}

	return m.validateRules()
}

func (m *Manifest) validateVariants() error {
	if len(m.Variants) == 0 {
		return &ValidationError{Field: "variants", Message: "at least one variant is required"}
	}
	if len(m.Variants) > MaxVariantCount {
		return &ValidationError{
			Field:   "variants",
			Message: fmt.Sprintf("too many variants (%d), maximum is %d", len(m.Variants), MaxVariantCount),
		}
	}

	// Predicates must be mutually exclusive: one variant per os/arch pair.
	seen := make(map[string]int, len(m.Variants))
	for i, v := range m.Variants {
		field := fmt.Sprintf("variants[%d]", i)

		if !v.OS.IsValid() {
			return &ValidationError{Field: field + ".os", Message: fmt.Sprintf("unsupported os %q (supported: macos, linux)", v.OS)}
		}

		if strings.TrimSpace(v.URLTemplate) == "" {
			return &ValidationError{Field: field + ".url_template", Message: "url template cannot be empty"}
		}
		if !v.HasVersionPlaceholder() {
			return &ValidationError{Field: field + ".url_template", Message: "url template must contain a {version} placeholder"}
		}
		if err := validateDownloadURL(v.URL("0.0.0")); err != nil {
			return &ValidationError{Field: field + ".url_template", Message: err.Error()}
		}

		if !v.IsDraft() && !IsHexDigest(v.SHA256) {
			return &ValidationError{Field: field + ".sha256", Message: "sha256 must be 64 hexadecimal characters"}
		}

		if v.SignatureURL != "" {
			if err := validateDownloadURL(v.SignatureLocation("0.0.0")); err != nil {
				return &ValidationError{Field: field + ".signature_url", Message: err.Error()}
			}
		}

		key := v.Key()
		if prev, dup := seen[key]; dup {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("platform %s already matched by variants[%d]", key, prev),
			}
		}
		seen[key] = i
	}

	return nil
}

func (m *Manifest) validateRules() error {
	if len(m.InstallRules) > MaxRuleCount {
		return &ValidationError{
			Field:   "install_rules",
			Message: fmt.Sprintf("too many install rules (%d), maximum is %d", len(m.InstallRules), MaxRuleCount),
		}
	}

	for i, r := range m.InstallRules {
		field := fmt.Sprintf("install_rules[%d]", i)

		if !r.Kind.IsValid() {
			return &ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown destination kind %q", r.Kind)}
		}
		if err := validateArchivePath(r.From); err != nil {
			return &ValidationError{Field: field + ".from", Message: err.Error()}
		}
		if r.As != "" {
			if r.As != path.Base(r.As) || r.As == "." || r.As == ".." || strings.ContainsAny(r.As, `/\`) {
				return &ValidationError{Field: field + ".as", Message: fmt.Sprintf("rename target %q must be a plain file name", r.As)}
			}
		}
	}

	return nil
}

// validateArchivePath rejects absolute paths and paths escaping the archive root.
func validateArchivePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("archive path cannot be empty")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return fmt.Errorf("archive path must be relative: %s", p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path traversal not allowed: %s", p)
	}
	return nil
}

func validateHomepage(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid homepage URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("homepage must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("homepage URL has no host")
	}
	return nil
}

func validateDownloadURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "https", "http":
		if u.Host == "" {
			return fmt.Errorf("URL has no host: %s", raw)
		}
	case "file":
	default:
		return fmt.Errorf("unsupported URL scheme %q (expected https, http or file)", u.Scheme)
	}
	return nil
}

// IsHexDigest reports whether value is a hex-encoded SHA-256 digest.
func IsHexDigest(value string) bool {
	if len(value) != 64 {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}
