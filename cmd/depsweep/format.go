package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"depsweep/internal/graph"
	"depsweep/internal/identity"
	"depsweep/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// outputFormat maps the per-command --json flag onto a format
func outputFormat(jsonFlag bool) OutputFormat {
	if jsonFlag {
		return FormatJSON
	}
	return FormatHuman
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *graph.ScanSummary:
		return formatScanHuman(v), nil
	case *graph.RemovalImpact:
		return formatImpactHuman(v), nil
	case *graph.GraphStatistics:
		return formatStatsHuman(v), nil
	case *graph.ConstraintReport:
		return formatCheckHuman(v), nil
	case *OrphansResponse:
		return formatOrphansHuman(v), nil
	case *SnapshotResponse:
		return formatSnapshotHuman(v), nil
	case *DoctorReport:
		return formatDoctorHuman(v), nil
	case *HistoryResponse:
		return formatHistoryHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

// nodeLine renders one package as "ecosystem::name version"
func nodeLine(node *storage.PackageNode) string {
	return node.Identity.Ref().Key() + " " + node.Identity.Version.Normalized()
}

// sourceLine renders an edge source (a canonical key) for human output
func sourceLine(sourceKey string) string {
	id, err := identity.ParseCanonicalKey(sourceKey)
	if err != nil {
		return sourceKey
	}
	return id.Ref().Key() + " " + id.Version.Normalized()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatScanHuman(summary *graph.ScanSummary) string {
	var b strings.Builder

	b.WriteString("Scan Results\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	icon := "✓"
	verdict := "Scan complete"
	if summary.IsFailure() {
		icon = "✗"
		verdict = "Scan failed"
	} else if summary.IsPartial() {
		icon = "⚠"
		verdict = "Scan completed with errors"
	}
	b.WriteString(fmt.Sprintf("%s %s in %s\n\n", icon, verdict, summary.Duration.Round(time.Millisecond)))

	b.WriteString(fmt.Sprintf("Packages: %d\n", summary.NodeCount))
	b.WriteString(fmt.Sprintf("Dependencies: %d\n", summary.EdgeCount))

	if len(summary.Ecosystems) > 0 {
		b.WriteString("\nPer ecosystem:\n")
		for _, eco := range sortedKeys(summary.Ecosystems) {
			b.WriteString(fmt.Sprintf("  %s: %d\n", eco, summary.Ecosystems[eco]))
		}
	}

	if len(summary.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, msg := range summary.Errors {
			b.WriteString(fmt.Sprintf("  ! %s\n", msg))
		}
	}

	return b.String()
}

func formatOrphansHuman(resp *OrphansResponse) string {
	var b strings.Builder

	b.WriteString("Orphaned Packages\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if resp.Count == 0 {
		b.WriteString("✓ No orphans: everything installed is requested or depended on\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Found %d orphaned package(s)", resp.Count))
	if resp.TotalSizeBytes > 0 {
		b.WriteString(fmt.Sprintf(" reclaiming up to %s", formatBytes(resp.TotalSizeBytes)))
	}
	b.WriteString("\n\n")

	for _, orphan := range resp.Orphans {
		line := fmt.Sprintf("  %s %s", orphan.Package, orphan.Version)
		if orphan.SizeBytes != nil {
			line += fmt.Sprintf("  (%s)", formatBytes(*orphan.SizeBytes))
		}
		b.WriteString(line + "\n")
		if orphan.InstallPath != "" {
			b.WriteString(fmt.Sprintf("    %s\n", orphan.InstallPath))
		}
	}

	return b.String()
}

func formatImpactHuman(impact *graph.RemovalImpact) string {
	var b strings.Builder

	b.WriteString("Removal Impact\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString("Targets:\n")
	for _, target := range impact.Targets {
		b.WriteString(fmt.Sprintf("  %s\n", nodeLine(target)))
	}
	b.WriteString("\n")

	if impact.SafeToRemove {
		b.WriteString("✓ Safe to remove: nothing installed depends on it\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("✗ Not safe to remove: %d package(s) affected\n\n", len(impact.AllDependents)))

	b.WriteString(fmt.Sprintf("Direct dependents (%d):\n", len(impact.DirectDependents)))
	for _, dep := range impact.DirectDependents {
		b.WriteString(fmt.Sprintf("  %s\n", nodeLine(dep)))
	}

	if len(impact.AllDependents) > len(impact.DirectDependents) {
		b.WriteString(fmt.Sprintf("\nTransitive dependents (%d):\n",
			len(impact.AllDependents)-len(impact.DirectDependents)))
		direct := make(map[string]bool, len(impact.DirectDependents))
		for _, dep := range impact.DirectDependents {
			direct[dep.Identity.CanonicalKey()] = true
		}
		for _, dep := range impact.AllDependents {
			if !direct[dep.Identity.CanonicalKey()] {
				b.WriteString(fmt.Sprintf("  %s\n", nodeLine(dep)))
			}
		}
	}

	return b.String()
}

func formatStatsHuman(stats *graph.GraphStatistics) string {
	var b strings.Builder

	b.WriteString("Graph Statistics\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Packages: %d\n", stats.NodeCount))
	b.WriteString(fmt.Sprintf("Dependencies: %d\n", stats.EdgeCount))
	b.WriteString(fmt.Sprintf("Requested directly: %d\n", stats.RequestedCount))
	b.WriteString(fmt.Sprintf("Orphaned: %d\n", stats.OrphanCount))
	if stats.TotalSizeBytes > 0 {
		b.WriteString(fmt.Sprintf("Reported size: %s\n", formatBytes(stats.TotalSizeBytes)))
	}

	if len(stats.NodesPerEcosystem) > 0 {
		b.WriteString("\nPer ecosystem:\n")
		for _, eco := range sortedKeys(stats.NodesPerEcosystem) {
			b.WriteString(fmt.Sprintf("  %s: %d\n", eco, stats.NodesPerEcosystem[eco]))
		}
	}

	if stats.LatestScan != nil {
		b.WriteString(fmt.Sprintf("\nLast scan: %s (%d packages, %d errors)\n",
			stats.LatestScan.StartedAt.Format(time.RFC3339),
			stats.LatestScan.NodeCount,
			stats.LatestScan.ErrorCount))
	}

	return b.String()
}

func formatCheckHuman(report *graph.ConstraintReport) string {
	var b strings.Builder

	b.WriteString("Constraint Check\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Checked %d declared constraint(s), %d satisfied\n",
		report.CheckedCount, report.SatisfiedCount))

	if len(report.Findings) == 0 {
		b.WriteString("\n✓ Every constraint satisfied\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, finding := range report.Findings {
		icon := "⚠"
		if finding.Status == graph.StatusViolated {
			icon = "✗"
		}
		b.WriteString(fmt.Sprintf("%s %s requires %s %s (installed %s)\n",
			icon,
			sourceLine(finding.Edge.SourceKey),
			finding.Edge.Target.Key(),
			finding.Edge.Constraint.Raw,
			finding.InstalledVersion))
		b.WriteString(fmt.Sprintf("    %s\n", finding.Reason))
	}

	return b.String()
}

func formatSnapshotHuman(resp *SnapshotResponse) string {
	var b strings.Builder

	b.WriteString("Dependency Graph\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Packages: %d | Dependencies: %d\n", resp.NodeCount, resp.EdgeCount))

	if len(resp.Ecosystems) > 0 {
		b.WriteString("\nPer ecosystem:\n")
		for _, eco := range sortedKeys(resp.Ecosystems) {
			b.WriteString(fmt.Sprintf("  %s: %d\n", eco, resp.Ecosystems[eco]))
		}
	}

	if len(resp.Nodes) > 0 {
		b.WriteString("\nPackages:\n")
		for _, node := range resp.Nodes {
			marker := " "
			if node.IsRequested {
				marker = "*"
			}
			b.WriteString(fmt.Sprintf("  %s %s\n", marker, nodeLine(node)))
		}
		b.WriteString("\n  * = requested directly\n")
	}

	return b.String()
}

func formatDoctorHuman(report *DoctorReport) string {
	var b strings.Builder

	b.WriteString("depsweep Doctor\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	icon := "✓"
	verdict := "All enabled ecosystems reachable"
	if !report.Healthy {
		icon = "✗"
		verdict = "Issues found"
	}
	b.WriteString(fmt.Sprintf("%s %s\n\n", icon, verdict))

	for _, check := range report.Ecosystems {
		var line string
		switch {
		case !check.Enabled:
			line = fmt.Sprintf("- %s: disabled in config", check.Ecosystem)
		case check.ToolPath != "":
			line = fmt.Sprintf("✓ %s: %s", check.Ecosystem, check.ToolPath)
		default:
			line = fmt.Sprintf("✗ %s: %s", check.Ecosystem, check.Message)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(fmt.Sprintf("\nConfig home: %s\n", report.ConfigHome))
	b.WriteString(fmt.Sprintf("Database: %s", report.DatabasePath))
	if !report.DatabaseExists {
		b.WriteString(" (not created yet, run 'depsweep scan')")
	}
	b.WriteString("\n")

	return b.String()
}

func formatHistoryHuman(resp *HistoryResponse) string {
	var b strings.Builder

	b.WriteString("Scan History\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if resp.Count == 0 {
		b.WriteString("No scans recorded yet. Run 'depsweep scan'.\n")
		return b.String()
	}

	for _, scan := range resp.Scans {
		icon := "✓"
		if scan.ErrorCount > 0 {
			icon = "⚠"
		}
		b.WriteString(fmt.Sprintf("%s %s  %d packages, %d dependencies in %s\n",
			icon,
			scan.StartedAt.Format(time.RFC3339),
			scan.NodeCount,
			scan.EdgeCount,
			scan.Duration.Round(time.Millisecond)))
		if scan.ErrorCount > 0 {
			b.WriteString(fmt.Sprintf("    %d error(s)\n", scan.ErrorCount))
		}
	}

	return b.String()
}

// formatBytes formats byte size in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
