package storage

import (
	"database/sql"
	"fmt"
	"time"

	"depsweep/internal/identity"
)

// nodeColumns is the canonical column list for nodes queries
const nodeColumns = `canonical_key, ecosystem, scope, name, version, version_known,
	       fingerprint, install_path, size_bytes, description, homepage, license,
	       metadata_json, is_requested, recorded_at`

// Store provides graph persistence on top of the nodes and edges tables
type Store struct {
	db *DB
}

// NewStore creates a new graph store
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// ReplaceAll swaps the stored graph for the given one in a single
// transaction. Readers see either the old graph or the new one, never a mix
func (s *Store) ReplaceAll(nodes []*PackageNode, edges []*DependencyEdge) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM edges"); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
			return fmt.Errorf("failed to clear nodes: %w", err)
		}

		for _, node := range nodes {
			if err := insertNodeTx(tx, node); err != nil {
				return err
			}
		}
		for _, edge := range edges {
			if err := insertEdgeTx(tx, edge); err != nil {
				return err
			}
		}

		return nil
	})
}

// InsertNode inserts or replaces a single node
func (s *Store) InsertNode(node *PackageNode) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		return insertNodeTx(tx, node)
	})
}

// InsertEdge inserts a single edge
func (s *Store) InsertEdge(edge *DependencyEdge) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		return insertEdgeTx(tx, edge)
	})
}

// insertNodeTx writes one node within a transaction. A canonical key that
// appears twice in a batch collapses to the last record
func insertNodeTx(tx *sql.Tx, node *PackageNode) error {
	recordedAt := node.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	metadata := "{}"
	if len(node.Metadata) > 0 {
		metadata = string(node.Metadata)
	}

	_, err := tx.Exec(`
		INSERT OR REPLACE INTO nodes (
			canonical_key, ecosystem, scope, name, version, version_known,
			fingerprint, install_path, size_bytes, description, homepage, license,
			metadata_json, is_requested, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		node.Identity.CanonicalKey(),
		string(node.Identity.Ecosystem),
		node.Identity.Scope,
		node.Identity.Name,
		node.Identity.Version.Normalized(),
		boolToInt(node.Identity.Version.Known),
		node.Identity.Fingerprint,
		node.InstallPath,
		node.SizeBytes,
		node.Description,
		node.Homepage,
		node.License,
		metadata,
		boolToInt(node.IsRequested),
		recordedAt.Format(time.RFC3339),
	)

	if err != nil {
		return fmt.Errorf("failed to insert node %s: %w", node.Identity.CanonicalKey(), err)
	}

	return nil
}

// insertEdgeTx writes one edge within a transaction. Duplicate declarations
// of the same dependency collapse to one edge
func insertEdgeTx(tx *sql.Tx, edge *DependencyEdge) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO edges (
			source_key, target_ecosystem, target_scope, target_name,
			constraint_kind, constraint_raw
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		edge.SourceKey,
		string(edge.Target.Ecosystem),
		edge.Target.Scope,
		edge.Target.Name,
		string(edge.Constraint.Kind),
		edge.Constraint.Raw,
	)

	if err != nil {
		return fmt.Errorf("failed to insert edge from %s: %w", edge.SourceKey, err)
	}

	return nil
}

// GetNode retrieves a node by its canonical key. Returns nil if not found
func (s *Store) GetNode(canonicalKey string) (*PackageNode, error) {
	row := s.db.QueryRow(`
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE canonical_key = ?
	`, canonicalKey)

	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return node, nil
}

// FindByRef retrieves all nodes matching an (ecosystem, scope, name)
// reference. Multiple nodes match when several versions or keg variants of
// the same package are installed
func (s *Store) FindByRef(ref identity.PackageRef) ([]*PackageNode, error) {
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE ecosystem = ? AND scope = ? AND name = ?
		ORDER BY version
	`, string(ref.Ecosystem), ref.Scope, ref.Name)

	if err != nil {
		return nil, fmt.Errorf("failed to find nodes by ref: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListNodes returns all nodes ordered by ecosystem, scope and name
func (s *Store) ListNodes() ([]*PackageNode, error) {
	rows, err := s.db.Query(`
		SELECT ` + nodeColumns + `
		FROM nodes
		ORDER BY ecosystem, scope, name, version
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListNodesByEcosystem returns all nodes for one ecosystem
func (s *Store) ListNodesByEcosystem(eco identity.Ecosystem) ([]*PackageNode, error) {
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE ecosystem = ?
		ORDER BY scope, name, version
	`, string(eco))

	if err != nil {
		return nil, fmt.Errorf("failed to list nodes by ecosystem: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// Dependencies returns the outgoing edges of a node
func (s *Store) Dependencies(sourceKey string) ([]*DependencyEdge, error) {
	rows, err := s.db.Query(`
		SELECT source_key, target_ecosystem, target_scope, target_name,
		       constraint_kind, constraint_raw
		FROM edges
		WHERE source_key = ?
		ORDER BY target_ecosystem, target_scope, target_name
	`, sourceKey)

	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// Dependents returns the edges pointing at an (ecosystem, scope, name)
// reference. The scope takes part in the match: @types/node and a bare node
// are different targets
func (s *Store) Dependents(ref identity.PackageRef) ([]*DependencyEdge, error) {
	rows, err := s.db.Query(`
		SELECT source_key, target_ecosystem, target_scope, target_name,
		       constraint_kind, constraint_raw
		FROM edges
		WHERE target_ecosystem = ? AND target_scope = ? AND target_name = ?
		ORDER BY source_key
	`, string(ref.Ecosystem), ref.Scope, ref.Name)

	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// OrphanNodes returns nodes that were not explicitly requested and have no
// installed package depending on them
func (s *Store) OrphanNodes() ([]*PackageNode, error) {
	rows, err := s.db.Query(`
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE is_requested = 0
		AND NOT EXISTS (
			SELECT 1 FROM edges e
			WHERE e.target_ecosystem = nodes.ecosystem
			  AND e.target_scope = nodes.scope
			  AND e.target_name = nodes.name
		)
		ORDER BY ecosystem, scope, name
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to get orphan nodes: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// Snapshot returns the stored graph. Edges whose target is not installed
// are filtered out of the snapshot; they remain stored and still count for
// orphan and dependent queries
func (s *Store) Snapshot() (*GraphSnapshot, error) {
	nodes, err := s.ListNodes()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT source_key, target_ecosystem, target_scope, target_name,
		       constraint_kind, constraint_raw
		FROM edges e
		WHERE EXISTS (
			SELECT 1 FROM nodes n
			WHERE n.ecosystem = e.target_ecosystem
			  AND n.scope = e.target_scope
			  AND n.name = e.target_name
		)
		ORDER BY source_key, target_ecosystem, target_scope, target_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}

	return &GraphSnapshot{Nodes: nodes, Edges: edges}, nil
}

// Stats aggregates counts over the stored graph
func (s *Store) Stats() (*StoreStats, error) {
	stats := &StoreStats{NodesPerEcosystem: make(map[string]int)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&stats.NodeCount); err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&stats.EdgeCount); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM nodes WHERE is_requested = 1").Scan(&stats.RequestedCount); err != nil {
		return nil, fmt.Errorf("failed to count requested nodes: %w", err)
	}

	rows, err := s.db.Query("SELECT ecosystem, COUNT(*) FROM nodes GROUP BY ecosystem")
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes per ecosystem: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eco string
		var count int
		if err := rows.Scan(&eco, &count); err != nil {
			return nil, fmt.Errorf("failed to scan ecosystem count: %w", err)
		}
		stats.NodesPerEcosystem[eco] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ecosystem counts: %w", err)
	}

	return stats, nil
}

// Clear wipes the stored graph and scan history
func (s *Store) Clear() error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"edges", "nodes", "scans"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNode scans one node row
func scanNode(rs rowScanner) (*PackageNode, error) {
	var node PackageNode
	var canonicalKey, ecosystem, version, recordedAt, metadata string
	var versionKnown, isRequested int
	var sizeBytes sql.NullInt64

	// canonical_key is derivable from the identity and only read back to
	// keep the column list uniform
	err := rs.Scan(
		&canonicalKey,
		&ecosystem,
		&node.Identity.Scope,
		&node.Identity.Name,
		&version,
		&versionKnown,
		&node.Identity.Fingerprint,
		&node.InstallPath,
		&sizeBytes,
		&node.Description,
		&node.Homepage,
		&node.License,
		&metadata,
		&isRequested,
		&recordedAt,
	)
	if err != nil {
		return nil, err
	}

	node.Identity.Ecosystem = identity.Ecosystem(ecosystem)
	if versionKnown == 1 {
		node.Identity.Version = identity.NewVersion(version)
	} else {
		node.Identity.Version = identity.UnknownVersion()
	}
	if sizeBytes.Valid {
		node.SizeBytes = &sizeBytes.Int64
	}
	if metadata != "" && metadata != "{}" {
		node.Metadata = []byte(metadata)
	}
	node.IsRequested = isRequested == 1

	node.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid recorded_at format: %w", err)
	}

	return &node, nil
}

// scanNodes scans rows into PackageNode structs
func scanNodes(rows *sql.Rows) ([]*PackageNode, error) {
	var nodes []*PackageNode

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

// scanEdges scans rows into DependencyEdge structs
func scanEdges(rows *sql.Rows) ([]*DependencyEdge, error) {
	var edges []*DependencyEdge

	for rows.Next() {
		var edge DependencyEdge
		var targetEco, constraintKind string

		err := rows.Scan(
			&edge.SourceKey,
			&targetEco,
			&edge.Target.Scope,
			&edge.Target.Name,
			&constraintKind,
			&edge.Constraint.Raw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}

		edge.Target.Ecosystem = identity.Ecosystem(targetEco)
		edge.Constraint.Kind = identity.ConstraintKind(constraintKind)

		edges = append(edges, &edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

// boolToInt converts a bool to its SQLite integer form
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
