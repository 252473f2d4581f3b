package storage

import (
	"database/sql"
	"fmt"

	"depsweep/internal/logging"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		// Create schema_version table first
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		// Create all application tables
		if err := createNodesTable(tx); err != nil {
			return err
		}
		if err := createEdgesTable(tx); err != nil {
			return err
		}
		if err := createScansTable(tx); err != nil {
			return err
		}

		// Set initial schema version
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", logging.Fields{
			"version": currentSchemaVersion,
		})

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	// Get current schema version
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", logging.Fields{
			"version": version,
		})
		return nil
	}

	db.logger.Info("Running database migrations", logging.Fields{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})

	// Run migrations sequentially
	// Add migration functions here as schema evolves

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	// Check if schema_version table exists
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		// Table doesn't exist, this is a new database
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	// Get version
	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createNodesTable creates the nodes table, one row per installed package.
// The canonical key already encodes ecosystem, scope, name, version and
// fingerprint; the individual columns exist for indexed lookups
func createNodesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			canonical_key TEXT PRIMARY KEY,
			ecosystem TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			version_known INTEGER NOT NULL DEFAULT 1,
			fingerprint TEXT NOT NULL DEFAULT '',
			install_path TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER,
			description TEXT NOT NULL DEFAULT '',
			homepage TEXT NOT NULL DEFAULT '',
			license TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			is_requested INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create nodes table: %w", err)
	}

	// Create indexes for common queries
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_nodes_ecosystem ON nodes(ecosystem)",
		"CREATE INDEX IF NOT EXISTS idx_nodes_ref ON nodes(ecosystem, scope, name)",
		"CREATE INDEX IF NOT EXISTS idx_nodes_is_requested ON nodes(is_requested)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createEdgesTable creates the edges table. Targets are stored as loose
// (ecosystem, scope, name) triples rather than canonical keys: a declared
// dependency may not be installed, and edges must survive that
func createEdgesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS edges (
			source_key TEXT NOT NULL,
			target_ecosystem TEXT NOT NULL,
			target_scope TEXT NOT NULL DEFAULT '',
			target_name TEXT NOT NULL,
			constraint_kind TEXT NOT NULL,
			constraint_raw TEXT NOT NULL DEFAULT '',

			PRIMARY KEY (source_key, target_ecosystem, target_scope, target_name),
			FOREIGN KEY (source_key) REFERENCES nodes(canonical_key) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create edges table: %w", err)
	}

	// Create indexes
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_ecosystem, target_scope, target_name)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createScansTable creates the scans history table
func createScansTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			scan_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			node_count INTEGER NOT NULL,
			edge_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			errors_json TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scans table: %w", err)
	}

	// Create indexes
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_scans_started_at ON scans(started_at)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
