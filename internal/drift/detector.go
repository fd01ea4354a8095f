package drift

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
	"github.com/ZebulonRouseFrantzich/keg/internal/record"
)

// Check verifies every file of rec.
//
// The classification, per file:
//  1. Missing on disk: MISSING
//  2. Digest differs from the record: MODIFIED
//  3. A binary whose name resolves on PATH to a different file: EXTERNAL_OVERRIDE
//  4. Otherwise OK
func Check(rec *record.Record, active ActiveLookup) *Report {
	if active == nil {
		active = QueryActive
	}

	report := &Report{
		Package: rec.Package,
		Version: rec.Version,
		Results: make([]DriftResult, 0, len(rec.Files)),
	}

	for _, f := range rec.Files {
		result := DriftResult{
			Path:     f.Path,
			Kind:     f.Kind,
			Expected: f.SHA256,
		}

		sum, err := record.HashFile(f.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			result.DriftType = DriftMissing
		case err != nil:
			// Unreadable files cannot be shown to match.
			result.DriftType = DriftModified
		default:
			result.Actual = sum
			result.DriftType = classify(f, sum, active)
			if result.DriftType == DriftExternalOverride {
				result.ActivePath, _ = active(filepath.Base(f.Path))
			}
		}

		report.Results = append(report.Results, result)
	}

	return report
}

func classify(f record.File, sum string, active ActiveLookup) DriftType {
	if sum != f.SHA256 {
		return DriftModified
	}
	if f.Kind != manifest.KindBinary {
		return DriftOK
	}

	activePath, found := active(filepath.Base(f.Path))
	if !found {
		return DriftOK
	}
	if resolve(activePath) != resolve(f.Path) {
		return DriftExternalOverride
	}
	return DriftOK
}
