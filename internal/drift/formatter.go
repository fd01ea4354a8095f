package drift

import (
	"fmt"
	"strings"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"

// FormatReport formats a drift report for user display
func FormatReport(report *Report) string {
	var sb strings.Builder
	// Pre-allocate for typical report size (header + entries + summary)
	sb.Grow(1024 + len(report.Results)*256)

	sb.WriteString("\n" + rule)
	fmt.Fprintf(&sb, "VERIFY %s %s\n", report.Package, report.Version)
	sb.WriteString(rule + "\n")

	// Display each drift (skip OK entries in detailed view)
	for _, r := range report.Results {
		if r.DriftType == DriftOK {
			continue
		}
		sb.WriteString(formatDriftEntry(r))
		sb.WriteString("\n")
	}

	okCount := report.Count(DriftOK)
	if okCount > 0 {
		fmt.Fprintf(&sb, "[OK] ✓\n  %d files match the installation record\n\n", okCount)
	}

	sb.WriteString(rule)

	totalDrifts := len(report.Results) - okCount
	if totalDrifts == 0 {
		sb.WriteString("SUMMARY: No drift detected ✓\n")
	} else {
		fmt.Fprintf(&sb, "SUMMARY: %d drifts detected\n", totalDrifts)

		var parts []string
		if n := report.Count(DriftMissing); n > 0 {
			parts = append(parts, fmt.Sprintf("%d missing", n))
		}
		if n := report.Count(DriftModified); n > 0 {
			parts = append(parts, fmt.Sprintf("%d modified", n))
		}
		if n := report.Count(DriftExternalOverride); n > 0 {
			parts = append(parts, fmt.Sprintf("%d external override", n))
		}
		sb.WriteString("  " + strings.Join(parts, ", ") + "\n")
	}

	sb.WriteString(rule)
	return sb.String()
}

// formatDriftEntry formats a single drift entry
func formatDriftEntry(r DriftResult) string {
	var sb strings.Builder

	switch r.DriftType {
	case DriftMissing:
		sb.WriteString("[MISSING]\n")
		fmt.Fprintf(&sb, "  %s (%s)\n", r.Path, r.Kind)
		sb.WriteString("    → Recorded by keg but no longer on disk\n")

	case DriftModified:
		sb.WriteString("[MODIFIED]\n")
		fmt.Fprintf(&sb, "  %s (%s)\n", r.Path, r.Kind)
		fmt.Fprintf(&sb, "    Expected:  sha256 %s\n", r.Expected)
		if r.Actual != "" {
			fmt.Fprintf(&sb, "    Actual:    sha256 %s\n", r.Actual)
		} else {
			sb.WriteString("    Actual:    (unreadable)\n")
		}

	case DriftExternalOverride:
		sb.WriteString("[EXTERNAL OVERRIDE] ⚠️\n")
		fmt.Fprintf(&sb, "  %s\n", r.Path)
		fmt.Fprintf(&sb, "    Active:    %s\n", r.ActivePath)
		sb.WriteString("    → Another installation takes precedence on PATH\n")
	}

	return sb.String()
}
