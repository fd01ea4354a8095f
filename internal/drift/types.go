// Package drift compares installed files against their installation record.
package drift

import "github.com/ZebulonRouseFrantzich/keg/internal/manifest"

// DriftType represents the type of drift detected
type DriftType int

const (
	DriftOK DriftType = iota
	DriftMissing
	DriftModified
	DriftExternalOverride
)

// String returns human-readable drift type name
func (d DriftType) String() string {
	switch d {
	case DriftOK:
		return "OK"
	case DriftMissing:
		return "MISSING"
	case DriftModified:
		return "MODIFIED"
	case DriftExternalOverride:
		return "EXTERNAL_OVERRIDE"
	default:
		return "UNKNOWN"
	}
}

// DriftResult represents the state of one recorded file
type DriftResult struct {
	Path      string
	Kind      manifest.DestinationKind
	DriftType DriftType
	// Expected and Actual are SHA-256 digests; Actual is empty for missing files.
	Expected string
	Actual   string
	// ActivePath is the executable found on PATH for an external override.
	ActivePath string
}

// Report is the drift of one package.
type Report struct {
	Package string
	Version string
	Results []DriftResult
}

// Count returns the number of results of type d.
func (r *Report) Count(d DriftType) int {
	n := 0
	for _, res := range r.Results {
		if res.DriftType == d {
			n++
		}
	}
	return n
}

// Broken reports whether any recorded file is missing or modified. External
// overrides are warnings only.
func (r *Report) Broken() bool {
	return r.Count(DriftMissing) > 0 || r.Count(DriftModified) > 0
}
