package main

import (
	"strings"
	"testing"
	"time"

	"depsweep/internal/graph"
	"depsweep/internal/identity"
	"depsweep/internal/storage"
)

func TestFormatResponse_JSON(t *testing.T) {
	resp := map[string]interface{}{
		"key": "value",
		"num": 42,
	}

	result, err := FormatResponse(resp, FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(result, `"key": "value"`) {
		t.Error("JSON output missing expected key")
	}
	if !strings.Contains(result, `"num": 42`) {
		t.Error("JSON output missing expected number")
	}
}

func TestFormatResponse_UnsupportedFormat(t *testing.T) {
	resp := map[string]string{"key": "value"}

	_, err := FormatResponse(resp, "xml")
	if err == nil {
		t.Error("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("error should mention unsupported format, got: %v", err)
	}
}

func graphNode(eco identity.Ecosystem, name, version string) *storage.PackageNode {
	return &storage.PackageNode{
		Identity: identity.PackageIdentity{
			Ecosystem: eco,
			Name:      name,
			Version:   identity.NewVersion(version),
		},
	}
}

func TestFormatScanHuman(t *testing.T) {
	summary := &graph.ScanSummary{
		ScanID:    "scan-1",
		Duration:  2345 * time.Millisecond,
		NodeCount: 3,
		EdgeCount: 2,
		Ecosystems: map[string]int{
			"brew": 2,
			"npm":  1,
		},
	}

	result := formatScanHuman(summary)

	if !strings.Contains(result, "✓ Scan complete") {
		t.Error("missing success verdict")
	}
	if !strings.Contains(result, "Packages: 3") {
		t.Error("missing package count")
	}
	if !strings.Contains(result, "brew: 2") {
		t.Error("missing ecosystem breakdown")
	}
}

func TestFormatScanHuman_Partial(t *testing.T) {
	summary := &graph.ScanSummary{
		NodeCount: 2,
		Errors:    []string{"npm/execute: npm executable not found"},
	}

	result := formatScanHuman(summary)

	if !strings.Contains(result, "⚠ Scan completed with errors") {
		t.Error("missing partial verdict")
	}
	if !strings.Contains(result, "! npm/execute") {
		t.Error("missing error line")
	}
}

func TestFormatScanHuman_Failure(t *testing.T) {
	summary := &graph.ScanSummary{
		Errors: []string{"brew/execute: brew executable not found"},
	}

	result := formatScanHuman(summary)

	if !strings.Contains(result, "✗ Scan failed") {
		t.Error("missing failure verdict")
	}
}

func TestFormatOrphansHuman(t *testing.T) {
	size := int64(2048)
	resp := &OrphansResponse{
		Count:          1,
		TotalSizeBytes: size,
		Orphans: []OrphanRow{{
			Package:     "brew::tree",
			Version:     "2.1.1",
			SizeBytes:   &size,
			InstallPath: "$HOMEBREW_PREFIX/opt/tree",
		}},
	}

	result := formatOrphansHuman(resp)

	if !strings.Contains(result, "Found 1 orphaned package(s)") {
		t.Error("missing orphan count")
	}
	if !strings.Contains(result, "brew::tree 2.1.1") {
		t.Error("missing orphan line")
	}
	if !strings.Contains(result, "2.0 KiB") {
		t.Error("missing size")
	}
	if !strings.Contains(result, "$HOMEBREW_PREFIX/opt/tree") {
		t.Error("missing install path")
	}
}

func TestFormatOrphansHuman_Empty(t *testing.T) {
	result := formatOrphansHuman(&OrphansResponse{})

	if !strings.Contains(result, "No orphans") {
		t.Error("missing empty message")
	}
}

func TestFormatImpactHuman(t *testing.T) {
	libpng := graphNode(identity.EcosystemBrew, "libpng", "1.6.43")
	freetype := graphNode(identity.EcosystemBrew, "freetype", "2.13.2")
	harfbuzz := graphNode(identity.EcosystemBrew, "harfbuzz", "8.4.0")

	impact := &graph.RemovalImpact{
		Targets:          []*storage.PackageNode{libpng},
		DirectDependents: []*storage.PackageNode{freetype},
		AllDependents:    []*storage.PackageNode{freetype, harfbuzz},
	}

	result := formatImpactHuman(impact)

	if !strings.Contains(result, "brew::libpng 1.6.43") {
		t.Error("missing target")
	}
	if !strings.Contains(result, "✗ Not safe to remove: 2 package(s) affected") {
		t.Error("missing verdict")
	}
	if !strings.Contains(result, "Direct dependents (1)") {
		t.Error("missing direct section")
	}
	if !strings.Contains(result, "Transitive dependents (1)") {
		t.Error("missing transitive section")
	}
	if !strings.Contains(result, "brew::harfbuzz 8.4.0") {
		t.Error("missing transitive dependent")
	}
}

func TestFormatImpactHuman_Safe(t *testing.T) {
	impact := &graph.RemovalImpact{
		Targets:      []*storage.PackageNode{graphNode(identity.EcosystemBrew, "harfbuzz", "8.4.0")},
		SafeToRemove: true,
	}

	result := formatImpactHuman(impact)

	if !strings.Contains(result, "✓ Safe to remove") {
		t.Error("missing safe verdict")
	}
}

func TestFormatStatsHuman(t *testing.T) {
	stats := &graph.GraphStatistics{
		NodeCount:      10,
		EdgeCount:      14,
		RequestedCount: 4,
		OrphanCount:    2,
		TotalSizeBytes: 3 * 1024 * 1024,
		NodesPerEcosystem: map[string]int{
			"brew": 6,
			"pip":  4,
		},
		LatestScan: &storage.ScanRecord{
			StartedAt:  time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
			NodeCount:  10,
			ErrorCount: 1,
		},
	}

	result := formatStatsHuman(stats)

	if !strings.Contains(result, "Packages: 10") {
		t.Error("missing node count")
	}
	if !strings.Contains(result, "Orphaned: 2") {
		t.Error("missing orphan count")
	}
	if !strings.Contains(result, "3.0 MiB") {
		t.Error("missing size")
	}
	if !strings.Contains(result, "2026-04-02T08:00:00Z") {
		t.Error("missing latest scan")
	}
}

func TestFormatCheckHuman(t *testing.T) {
	eslint := identity.PackageIdentity{
		Ecosystem: identity.EcosystemNpm,
		Name:      "eslint",
		Version:   identity.NewVersion("8.57.0"),
	}

	report := &graph.ConstraintReport{
		CheckedCount:   3,
		SatisfiedCount: 2,
		Findings: []graph.ConstraintFinding{{
			Edge: &storage.DependencyEdge{
				SourceKey: eslint.CanonicalKey(),
				Target:    identity.PackageRef{Ecosystem: identity.EcosystemNpm, Name: "espree"},
				Constraint: identity.VersionConstraint{
					Kind: identity.ConstraintExact,
					Raw:  "==9.0.0",
				},
			},
			InstalledVersion: "10.0.0",
			Status:           graph.StatusViolated,
			Reason:           "installed 10.0.0, requires exactly 9.0.0",
		}},
	}

	result := formatCheckHuman(report)

	if !strings.Contains(result, "Checked 3 declared constraint(s), 2 satisfied") {
		t.Error("missing summary")
	}
	if !strings.Contains(result, "✗ npm::eslint 8.57.0 requires npm::espree ==9.0.0 (installed 10.0.0)") {
		t.Error("missing violated line")
	}
	if !strings.Contains(result, "requires exactly 9.0.0") {
		t.Error("missing reason")
	}
}

func TestFormatCheckHuman_AllSatisfied(t *testing.T) {
	report := &graph.ConstraintReport{CheckedCount: 5, SatisfiedCount: 5}

	result := formatCheckHuman(report)

	if !strings.Contains(result, "✓ Every constraint satisfied") {
		t.Error("missing clean verdict")
	}
}

func TestFormatDoctorHuman(t *testing.T) {
	report := &DoctorReport{
		Healthy:      false,
		ConfigHome:   "/home/user/.depsweep",
		DatabasePath: "/home/user/.depsweep/depsweep.db",
		Ecosystems: []EcosystemCheck{
			{Ecosystem: "brew", Enabled: true, ToolPath: "/opt/homebrew/bin/brew"},
			{Ecosystem: "npm", Enabled: true, Message: "npm executable not found"},
			{Ecosystem: "pip", Enabled: false},
		},
	}

	result := formatDoctorHuman(report)

	if !strings.Contains(result, "✗ Issues found") {
		t.Error("missing unhealthy verdict")
	}
	if !strings.Contains(result, "✓ brew: /opt/homebrew/bin/brew") {
		t.Error("missing located tool")
	}
	if !strings.Contains(result, "✗ npm: npm executable not found") {
		t.Error("missing failed check")
	}
	if !strings.Contains(result, "- pip: disabled in config") {
		t.Error("missing disabled check")
	}
	if !strings.Contains(result, "not created yet") {
		t.Error("missing missing-database hint")
	}
}

func TestFormatHistoryHuman(t *testing.T) {
	resp := &HistoryResponse{
		Count: 2,
		Scans: []*storage.ScanRecord{
			{
				StartedAt: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
				Duration:  1800 * time.Millisecond,
				NodeCount: 12,
				EdgeCount: 20,
			},
			{
				StartedAt:  time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
				Duration:   1500 * time.Millisecond,
				NodeCount:  11,
				EdgeCount:  19,
				ErrorCount: 1,
			},
		},
	}

	result := formatHistoryHuman(resp)

	if !strings.Contains(result, "✓ 2026-04-02T08:00:00Z  12 packages, 20 dependencies in 1.8s") {
		t.Error("missing clean scan line")
	}
	if !strings.Contains(result, "⚠ 2026-04-01T08:00:00Z") {
		t.Error("missing errored scan line")
	}
	if !strings.Contains(result, "1 error(s)") {
		t.Error("missing error count")
	}
}

func TestFormatHistoryHuman_Empty(t *testing.T) {
	result := formatHistoryHuman(&HistoryResponse{})

	if !strings.Contains(result, "No scans recorded yet") {
		t.Error("missing empty message")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatBytes(tt.bytes)
			if result != tt.expected {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, result, tt.expected)
			}
		})
	}
}

func TestSourceLine(t *testing.T) {
	id := identity.PackageIdentity{
		Ecosystem: identity.EcosystemBrew,
		Name:      "jq",
		Version:   identity.NewVersion("1.7.1"),
	}

	if got := sourceLine(id.CanonicalKey()); got != "brew::jq 1.7.1" {
		t.Errorf("sourceLine() = %q", got)
	}

	// Unparseable keys pass through untouched
	if got := sourceLine("not-a-key"); got != "not-a-key" {
		t.Errorf("sourceLine fallback = %q", got)
	}
}
