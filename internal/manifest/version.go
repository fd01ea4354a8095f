package manifest

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonicalVersion adds the "v" prefix golang.org/x/mod/semver expects.
func canonicalVersion(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// IsValidVersion reports whether version is a semantic version, with or
// without a leading "v".
func IsValidVersion(version string) bool {
	return semver.IsValid(canonicalVersion(version))
}

// CompareVersions compares two semantic versions. The result is 0 if a == b,
// -1 if a < b, and +1 if a > b. Invalid versions sort before valid ones;
// two invalid versions are ordered as strings, so they compare equal only
// when the strings match exactly.
func CompareVersions(a, b string) int {
	ca, cb := canonicalVersion(a), canonicalVersion(b)
	validA, validB := semver.IsValid(ca), semver.IsValid(cb)
	switch {
	case !validA && !validB:
		return strings.Compare(strings.TrimSpace(a), strings.TrimSpace(b))
	case !validA:
		return -1
	case !validB:
		return 1
	}
	return semver.Compare(ca, cb)
}
