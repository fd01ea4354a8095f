package platform

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// UnsupportedPlatformError reports that no variant of a manifest matches the host.
type UnsupportedPlatformError struct {
	Package   string
	Host      string
	Available []string
}

func (e *UnsupportedPlatformError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("%s has no variants", e.Package)
	}
	return fmt.Sprintf("%s has no variant for %s (available: %s)", e.Package, e.Host, strings.Join(e.Available, ", "))
}

// Resolve selects the variant whose predicate matches host. A variant
// matches when its OS equals the host OS and its architecture equals the
// host architecture. Validated manifests have at most one match; if an
// unvalidated manifest has several, the first wins.
func Resolve(m *manifest.Manifest, host *Info) (*manifest.Variant, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is nil")
	}
	if host == nil {
		return nil, fmt.Errorf("host platform is nil")
	}

	if host.OS != "" {
		for i := range m.Variants {
			v := &m.Variants[i]
			if v.OS == host.OS && v.Architecture() == host.Arch {
				match := *v
				return &match, nil
			}
		}
	}

	available := make([]string, 0, len(m.Variants))
	for _, v := range m.Variants {
		available = append(available, v.Key())
	}
	return nil, &UnsupportedPlatformError{
		Package:   m.Name,
		Host:      host.Key(),
		Available: available,
	}
}
