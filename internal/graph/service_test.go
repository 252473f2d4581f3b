package graph

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stderrors "errors"

	"depsweep/internal/errors"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/logging"
	"depsweep/internal/storage"
)

type stubAdapter struct {
	eco    identity.Ecosystem
	result ingest.IngestionResult
}

func (a *stubAdapter) Ecosystem() identity.Ecosystem { return a.eco }

func (a *stubAdapter) FetchInstalledRecords(_ context.Context) ingest.IngestionResult {
	return a.result
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "depsweep.db"), logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestService(t *testing.T, adapters ...ingest.Adapter) *Service {
	t.Helper()
	return NewService(storage.NewStore(newTestDB(t)), adapters, logging.NewDiscardLogger())
}

func formulaRecord(name, version string, requested bool, deps ...string) ingest.RawPackageRecord {
	id := identity.PackageIdentity{
		Ecosystem:   identity.EcosystemBrew,
		Name:        name,
		Version:     identity.NewVersion(version),
		Fingerprint: identity.ComputeFingerprint("$HOMEBREW_PREFIX/opt/"+name, "arm64"),
	}

	var dd []ingest.Dependency
	for _, dep := range deps {
		dd = append(dd, ingest.Dependency{Name: dep, Constraint: identity.AnyVersion()})
	}

	return ingest.RawPackageRecord{
		Identity:     id,
		InstallPath:  "$HOMEBREW_PREFIX/opt/" + name,
		IsRequested:  requested,
		Dependencies: dd,
	}
}

func npmRecord(scope, name, version string, deps ...string) ingest.RawPackageRecord {
	id := identity.PackageIdentity{
		Ecosystem: identity.EcosystemNpm,
		Scope:     scope,
		Name:      name,
		Version:   identity.NewVersion(version),
	}

	var dd []ingest.Dependency
	for _, dep := range deps {
		dd = append(dd, ingest.Dependency{Name: dep, Constraint: identity.AnyVersion()})
	}

	return ingest.RawPackageRecord{
		Identity:     id,
		IsRequested:  true,
		Dependencies: dd,
	}
}

// Three formulae, harfbuzz -> freetype -> libpng, none explicitly requested.
func chainAdapter() *stubAdapter {
	return &stubAdapter{
		eco: identity.EcosystemBrew,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemBrew,
			Records: []ingest.RawPackageRecord{
				formulaRecord("harfbuzz", "8.4.0", false, "freetype"),
				formulaRecord("freetype", "2.13.2", false, "libpng"),
				formulaRecord("libpng", "1.6.43", false),
			},
		},
	}
}

func TestScanAllEndToEnd(t *testing.T) {
	service := newTestService(t, chainAdapter())

	summary, err := service.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	if !summary.IsSuccess() {
		t.Fatalf("Expected success, got errors %v", summary.Errors)
	}
	if summary.NodeCount != 3 {
		t.Errorf("Expected 3 nodes, got %d", summary.NodeCount)
	}
	if summary.EdgeCount != 2 {
		t.Errorf("Expected 2 edges, got %d", summary.EdgeCount)
	}
	if summary.Ecosystems["brew"] != 3 {
		t.Errorf("Expected 3 brew records, got %v", summary.Ecosystems)
	}
	if summary.ScanID == "" {
		t.Error("Expected a scan ID")
	}

	// Nothing depends on harfbuzz and it was not requested.
	orphans, err := service.Orphans()
	if err != nil {
		t.Fatalf("Orphans failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Identity.Name != "harfbuzz" {
		t.Fatalf("Expected harfbuzz as the only orphan, got %+v", orphans)
	}

	// Removing the leaf breaks the whole chain.
	impact, err := service.SimulateRemoval("brew::libpng")
	if err != nil {
		t.Fatalf("SimulateRemoval failed: %v", err)
	}
	if len(impact.DirectDependents) != 1 || impact.DirectDependents[0].Identity.Name != "freetype" {
		t.Errorf("Expected freetype as direct dependent, got %+v", impact.DirectDependents)
	}
	if len(impact.AllDependents) != 2 {
		t.Errorf("Expected 2 affected packages, got %d", len(impact.AllDependents))
	}
	if impact.SafeToRemove {
		t.Error("Expected libpng removal to be unsafe")
	}

	// Removing the root affects nothing.
	impact, err = service.SimulateRemoval("brew::harfbuzz")
	if err != nil {
		t.Fatalf("SimulateRemoval failed: %v", err)
	}
	if len(impact.AllDependents) != 0 {
		t.Errorf("Expected no dependents for harfbuzz, got %d", len(impact.AllDependents))
	}
	if !impact.SafeToRemove {
		t.Error("Expected harfbuzz removal to be safe")
	}
}

func TestScanAllMergesAdapters(t *testing.T) {
	brewStub := &stubAdapter{
		eco: identity.EcosystemBrew,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemBrew,
			Records:   []ingest.RawPackageRecord{formulaRecord("jq", "1.7.1", true, "oniguruma")},
		},
	}
	npmStub := &stubAdapter{
		eco: identity.EcosystemNpm,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemNpm,
			Records: []ingest.RawPackageRecord{
				npmRecord("", "typescript", "5.4.5"),
				npmRecord("angular", "cli", "17.3.6", "@angular-devkit/core"),
			},
		},
	}

	service := newTestService(t, brewStub, npmStub)

	summary, err := service.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	if summary.NodeCount != 3 {
		t.Errorf("Expected 3 nodes, got %d", summary.NodeCount)
	}
	if summary.Ecosystems["brew"] != 1 || summary.Ecosystems["npm"] != 2 {
		t.Errorf("Expected per-ecosystem counts brew=1 npm=2, got %v", summary.Ecosystems)
	}

	// The scoped npm dependency name is split into scope and name.
	snapshot, err := service.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	var found bool
	for _, node := range snapshot.Nodes {
		if node.Identity.Scope == "angular" && node.Identity.Name == "cli" {
			deps, err := service.store.Dependencies(node.Identity.CanonicalKey())
			if err != nil {
				t.Fatalf("Dependencies failed: %v", err)
			}
			if len(deps) != 1 {
				t.Fatalf("Expected 1 edge, got %d", len(deps))
			}
			if deps[0].Target.Scope != "angular-devkit" || deps[0].Target.Name != "core" {
				t.Errorf("Expected scoped target angular-devkit/core, got %+v", deps[0].Target)
			}
			found = true
		}
	}
	if !found {
		t.Error("Expected @angular/cli node in snapshot")
	}
}

func TestScanAllPartialIngestion(t *testing.T) {
	good := &stubAdapter{
		eco: identity.EcosystemBrew,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemBrew,
			Records:   []ingest.RawPackageRecord{formulaRecord("jq", "1.7.1", true)},
		},
	}
	bad := &stubAdapter{
		eco: identity.EcosystemNpm,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemNpm,
			Errors: []ingest.IngestionError{{
				Ecosystem:   identity.EcosystemNpm,
				Phase:       ingest.PhaseExecute,
				Message:     "npm executable not found",
				Recoverable: true,
			}},
		},
	}

	service := newTestService(t, good, bad)

	summary, err := service.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	if summary.NodeCount != 1 {
		t.Errorf("Expected counts from the successful adapter only, got %d nodes", summary.NodeCount)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "npm executable not found") {
		t.Errorf("Expected the failed adapter's error, got %v", summary.Errors)
	}
	if !summary.IsPartial() {
		t.Error("Expected a partial scan")
	}
	if summary.IsSuccess() || summary.IsFailure() {
		t.Error("Expected neither success nor failure classification")
	}
}

func TestScanAllTotalFailure(t *testing.T) {
	bad := &stubAdapter{
		eco: identity.EcosystemBrew,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemBrew,
			Errors: []ingest.IngestionError{{
				Ecosystem:   identity.EcosystemBrew,
				Phase:       ingest.PhaseExecute,
				Message:     "brew executable not found",
				Recoverable: true,
			}},
		},
	}

	service := newTestService(t, bad)

	summary, err := service.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	if !summary.IsFailure() {
		t.Error("Expected a failure classification")
	}
	if summary.NodeCount != 0 {
		t.Errorf("Expected 0 nodes, got %d", summary.NodeCount)
	}
	if len(summary.Errors) != 1 {
		t.Errorf("Expected 1 error, got %v", summary.Errors)
	}
}

func TestScanAllCancellation(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewStore(db)
	service := NewService(store, []ingest.Adapter{chainAdapter()}, logging.NewDiscardLogger())

	// Seed a graph, then cancel before the next scan's store write.
	if _, err := service.ScanAll(context.Background()); err != nil {
		t.Fatalf("Seed scan failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.ScanAll(ctx)
	if err == nil {
		t.Fatal("Expected an error from a canceled scan")
	}
	var sweepErr *errors.SweepError
	if !stderrors.As(err, &sweepErr) || sweepErr.Code != errors.Canceled {
		t.Errorf("Expected a Canceled error, got %v", err)
	}

	// The previous graph must be untouched.
	nodes, err := store.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 3 {
		t.Errorf("Expected the seeded graph to survive cancellation, got %d nodes", len(nodes))
	}
}

func TestScanAllStoreFailure(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "depsweep.db"), logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	service := NewService(storage.NewStore(db), []ingest.Adapter{chainAdapter()}, logging.NewDiscardLogger())

	// A closed handle makes every store write fail.
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	summary, err := service.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("Expected the store failure inside the summary, got %v", err)
	}

	if summary.NodeCount != 3 {
		t.Errorf("Expected computed counts to be kept, got %d nodes", summary.NodeCount)
	}
	var foundStoreError bool
	for _, msg := range summary.Errors {
		if strings.Contains(msg, "store") {
			foundStoreError = true
		}
	}
	if !foundStoreError {
		t.Errorf("Expected a store-phase error, got %v", summary.Errors)
	}
}

func TestSimulateRemovalCycle(t *testing.T) {
	cyclic := &stubAdapter{
		eco: identity.EcosystemNpm,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemNpm,
			Records: []ingest.RawPackageRecord{
				npmRecord("", "pkg-a", "1.0.0", "pkg-b"),
				npmRecord("", "pkg-b", "1.0.0", "pkg-c"),
				npmRecord("", "pkg-c", "1.0.0", "pkg-a"),
			},
		},
	}

	service := newTestService(t, cyclic)
	if _, err := service.ScanAll(context.Background()); err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	impact, err := service.SimulateRemoval("npm::pkg-a")
	if err != nil {
		t.Fatalf("SimulateRemoval failed: %v", err)
	}

	// pkg-c depends on pkg-a directly; pkg-b transitively. The cycle back
	// into pkg-a must not recount anything.
	if len(impact.DirectDependents) != 1 || impact.DirectDependents[0].Identity.Name != "pkg-c" {
		t.Errorf("Expected pkg-c as direct dependent, got %+v", impact.DirectDependents)
	}
	if len(impact.AllDependents) != 2 {
		t.Fatalf("Expected each affected node counted once, got %d", len(impact.AllDependents))
	}
	seen := make(map[string]bool)
	for _, dep := range impact.AllDependents {
		if seen[dep.Identity.Name] {
			t.Errorf("Node %s counted twice", dep.Identity.Name)
		}
		seen[dep.Identity.Name] = true
	}
	if impact.SafeToRemove {
		t.Error("Expected removal inside a cycle to be unsafe")
	}
}

func TestSimulateRemovalByCanonicalKey(t *testing.T) {
	service := newTestService(t, chainAdapter())
	if _, err := service.ScanAll(context.Background()); err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	nodes, err := service.store.FindByRef(identity.PackageRef{Ecosystem: identity.EcosystemBrew, Name: "libpng"})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("Failed to find libpng: %v (%d nodes)", err, len(nodes))
	}

	impact, err := service.SimulateRemoval(nodes[0].Identity.CanonicalKey())
	if err != nil {
		t.Fatalf("SimulateRemoval by canonical key failed: %v", err)
	}
	if len(impact.AllDependents) != 2 {
		t.Errorf("Expected 2 dependents, got %d", len(impact.AllDependents))
	}
}

func TestSimulateRemovalMissing(t *testing.T) {
	service := newTestService(t, chainAdapter())
	if _, err := service.ScanAll(context.Background()); err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	_, err := service.SimulateRemoval("brew::nonexistent")
	if err == nil {
		t.Fatal("Expected an error for a missing package")
	}
	var sweepErr *errors.SweepError
	if !stderrors.As(err, &sweepErr) || sweepErr.Code != errors.NotFound {
		t.Errorf("Expected a NotFound error, got %v", err)
	}
}

func TestStatisticsWithNilSizes(t *testing.T) {
	size := int64(1024)
	withSize := formulaRecord("jq", "1.7.1", true, "oniguruma")
	withSize.SizeBytes = &size
	withoutSize := formulaRecord("oniguruma", "6.9.9", false)

	adapter := &stubAdapter{
		eco: identity.EcosystemBrew,
		result: ingest.IngestionResult{
			Ecosystem: identity.EcosystemBrew,
			Records:   []ingest.RawPackageRecord{withSize, withoutSize},
		},
	}

	service := newTestService(t, adapter)
	if _, err := service.ScanAll(context.Background()); err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	stats, err := service.Statistics()
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}

	if stats.NodeCount != 2 || stats.EdgeCount != 1 {
		t.Errorf("Expected 2 nodes and 1 edge, got %d/%d", stats.NodeCount, stats.EdgeCount)
	}
	if stats.TotalSizeBytes != size {
		t.Errorf("Expected nil sizes to add zero, got total %d", stats.TotalSizeBytes)
	}
	if stats.RequestedCount != 1 {
		t.Errorf("Expected 1 requested node, got %d", stats.RequestedCount)
	}
	if stats.OrphanCount != 0 {
		t.Errorf("Expected no orphans, got %d", stats.OrphanCount)
	}
	if stats.LatestScan == nil {
		t.Error("Expected the latest scan to be attached")
	}
}

func TestScanHistoryRecorded(t *testing.T) {
	service := newTestService(t, chainAdapter())

	summary, err := service.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	history, err := service.History(5)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(history) != 1 {
		t.Fatalf("Expected 1 scan record, got %d", len(history))
	}
	if history[0].ScanID != summary.ScanID {
		t.Errorf("Expected scan ID %s, got %s", summary.ScanID, history[0].ScanID)
	}
	if history[0].NodeCount != 3 {
		t.Errorf("Expected 3 nodes in history, got %d", history[0].NodeCount)
	}
	if history[0].Duration < 0 || history[0].Duration > time.Minute {
		t.Errorf("Expected a sane duration, got %s", history[0].Duration)
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		target    string
		wantEco   identity.Ecosystem
		wantScope string
		wantName  string
		wantErr   bool
	}{
		{"brew::jq", identity.EcosystemBrew, "", "jq", false},
		{"npm::@angular/cli", identity.EcosystemNpm, "angular", "cli", false},
		{"npm::angular/cli", identity.EcosystemNpm, "angular", "cli", false},
		{"pip::requests", identity.EcosystemPip, "", "requests", false},
		{"no-separator", "", "", "", true},
		{"::name", "", "", "", true},
		{"brew::", "", "", "", true},
	}

	for _, tt := range tests {
		ref, err := parseRef(tt.target)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseRef(%q): expected error", tt.target)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRef(%q): unexpected error %v", tt.target, err)
			continue
		}
		if ref.Ecosystem != tt.wantEco || ref.Scope != tt.wantScope || ref.Name != tt.wantName {
			t.Errorf("parseRef(%q): expected %s/%s/%s, got %s/%s/%s",
				tt.target, tt.wantEco, tt.wantScope, tt.wantName, ref.Ecosystem, ref.Scope, ref.Name)
		}
	}
}
