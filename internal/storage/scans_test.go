package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestScanHistoryRoundTrip(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	store := NewStore(db)

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	rec := &ScanRecord{
		ScanID:     "scan-abc",
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
		NodeCount:  42,
		EdgeCount:  77,
		ErrorCount: 1,
		Errors:     []string{"[npm/execute] npm not found"},
	}

	if err := store.RecordScan(rec); err != nil {
		t.Fatalf("Failed to record scan: %v", err)
	}

	latest, err := store.LatestScan()
	if err != nil {
		t.Fatalf("Failed to get latest scan: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected a latest scan")
	}

	if latest.ScanID != "scan-abc" {
		t.Errorf("Expected scan-abc, got %s", latest.ScanID)
	}
	if !latest.StartedAt.Equal(started) {
		t.Errorf("Expected started_at %s, got %s", started, latest.StartedAt)
	}
	if latest.Duration != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s duration, got %s", latest.Duration)
	}
	if latest.NodeCount != 42 || latest.EdgeCount != 77 {
		t.Errorf("Expected counts 42/77, got %d/%d", latest.NodeCount, latest.EdgeCount)
	}
	if len(latest.Errors) != 1 || latest.Errors[0] != "[npm/execute] npm not found" {
		t.Errorf("Expected errors to round-trip, got %v", latest.Errors)
	}
}

func TestLatestScanEmpty(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	latest, err := NewStore(db).LatestScan()
	if err != nil {
		t.Fatalf("Expected no error on empty history, got %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil on empty history, got %+v", latest)
	}
}

func TestListScansNewestFirst(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	store := NewStore(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := &ScanRecord{
			ScanID:    fmt.Sprintf("scan-%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			NodeCount: i,
		}
		if err := store.RecordScan(rec); err != nil {
			t.Fatalf("Failed to record scan %d: %v", i, err)
		}
	}

	scans, err := store.ListScans(2)
	if err != nil {
		t.Fatalf("Failed to list scans: %v", err)
	}

	if len(scans) != 2 {
		t.Fatalf("Expected 2 scans, got %d", len(scans))
	}
	if scans[0].ScanID != "scan-2" || scans[1].ScanID != "scan-1" {
		t.Errorf("Expected newest first, got %s then %s", scans[0].ScanID, scans[1].ScanID)
	}
}

func TestScanHistoryPruned(t *testing.T) {
	db, tmpDir := setupTestDB(t)
	defer teardownTestDB(t, db, tmpDir)

	store := NewStore(db)

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < scanHistoryLimit+5; i++ {
		rec := &ScanRecord{
			ScanID:    fmt.Sprintf("scan-%03d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordScan(rec); err != nil {
			t.Fatalf("Failed to record scan %d: %v", i, err)
		}
	}

	scans, err := store.ListScans(0)
	if err != nil {
		t.Fatalf("Failed to list scans: %v", err)
	}

	if len(scans) != scanHistoryLimit {
		t.Fatalf("Expected history pruned to %d, got %d", scanHistoryLimit, len(scans))
	}
	// The oldest records are the pruned ones.
	if scans[0].ScanID != fmt.Sprintf("scan-%03d", scanHistoryLimit+4) {
		t.Errorf("Expected newest scan to survive, got %s", scans[0].ScanID)
	}
	for _, rec := range scans {
		if rec.ScanID < "scan-005" {
			t.Errorf("Expected scan %s to be pruned", rec.ScanID)
		}
	}
}
