package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// scanHistoryLimit caps how many scan records are retained
const scanHistoryLimit = 50

// RecordScan persists a scan summary and prunes history beyond the
// retention limit
func (s *Store) RecordScan(rec *ScanRecord) error {
	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode scan errors: %w", err)
	}

	return s.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO scans (scan_id, started_at, duration_ms, node_count, edge_count, error_count, errors_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ScanID,
			rec.StartedAt.Format(time.RFC3339),
			rec.Duration.Milliseconds(),
			rec.NodeCount,
			rec.EdgeCount,
			rec.ErrorCount,
			string(errorsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to record scan: %w", err)
		}

		_, err = tx.Exec(`
			DELETE FROM scans WHERE scan_id NOT IN (
				SELECT scan_id FROM scans ORDER BY started_at DESC LIMIT ?
			)
		`, scanHistoryLimit)
		if err != nil {
			return fmt.Errorf("failed to prune scan history: %w", err)
		}

		return nil
	})
}

// ListScans returns the most recent scans, newest first
func (s *Store) ListScans(limit int) ([]*ScanRecord, error) {
	if limit <= 0 || limit > scanHistoryLimit {
		limit = scanHistoryLimit
	}

	rows, err := s.db.Query(`
		SELECT scan_id, started_at, duration_ms, node_count, edge_count, error_count, errors_json
		FROM scans
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*ScanRecord
	for rows.Next() {
		rec, err := scanScanRecord(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}

	return scans, nil
}

// LatestScan returns the most recent scan record, or nil if none exists
func (s *Store) LatestScan() (*ScanRecord, error) {
	row := s.db.QueryRow(`
		SELECT scan_id, started_at, duration_ms, node_count, edge_count, error_count, errors_json
		FROM scans
		ORDER BY started_at DESC
		LIMIT 1
	`)

	rec, err := scanScanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// scanScanRecord scans one scan history row
func scanScanRecord(rs rowScanner) (*ScanRecord, error) {
	var rec ScanRecord
	var startedAt, errorsJSON string
	var durationMs int64

	err := rs.Scan(
		&rec.ScanID,
		&startedAt,
		&durationMs,
		&rec.NodeCount,
		&rec.EdgeCount,
		&rec.ErrorCount,
		&errorsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scan record: %w", err)
	}

	rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at format: %w", err)
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond

	if err := json.Unmarshal([]byte(errorsJSON), &rec.Errors); err != nil {
		return nil, fmt.Errorf("invalid errors_json format: %w", err)
	}

	return &rec, nil
}
