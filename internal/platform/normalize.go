package platform

import (
	"strings"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// familyMap maps distribution names to their canonical family names.
var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian, // gopsutil might return ubuntu as family
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
	"alpine":   FamilyAlpine,
	"gentoo":   FamilyGentoo,
}

// hostOS maps GOOS to the manifest OS predicate. Hosts without a predicate
// map to "" and match no variant.
func hostOS(goos string) manifest.OS {
	switch goos {
	case "darwin":
		return manifest.OSMacOS
	case "linux":
		return manifest.OSLinux
	default:
		return ""
	}
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps distribution family strings to canonical family names.
func mapFamily(family string) string {
	normalized := strings.ToLower(strings.TrimSpace(family))
	if canonical, ok := familyMap[normalized]; ok {
		return canonical
	}
	return FamilyUnknown
}

func splitKey(key string) (string, string, bool) {
	return strings.Cut(strings.TrimSpace(key), "/")
}
