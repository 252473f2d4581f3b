package storage

import (
	"encoding/json"
	"time"

	"depsweep/internal/identity"
)

// PackageNode represents one installed package in the graph
type PackageNode struct {
	Identity    identity.PackageIdentity `json:"identity"`
	InstallPath string                   `json:"installPath,omitempty"`
	SizeBytes   *int64                   `json:"sizeBytes,omitempty"`
	Description string                   `json:"description,omitempty"`
	Homepage    string                   `json:"homepage,omitempty"`
	License     string                   `json:"license,omitempty"`
	Metadata    json.RawMessage          `json:"metadata,omitempty"`
	IsRequested bool                     `json:"isRequested"`
	RecordedAt  time.Time                `json:"recordedAt"`
}

// DependencyEdge represents one declared dependency. The source is a node
// that exists in the store; the target is a loose reference that may or may
// not resolve to an installed node
type DependencyEdge struct {
	SourceKey  string                     `json:"sourceKey"`
	Target     identity.PackageRef        `json:"target"`
	Constraint identity.VersionConstraint `json:"constraint"`
}

// ScanRecord summarizes one completed inventory scan
type ScanRecord struct {
	ScanID     string        `json:"scanId"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	NodeCount  int           `json:"nodeCount"`
	EdgeCount  int           `json:"edgeCount"`
	ErrorCount int           `json:"errorCount"`
	Errors     []string      `json:"errors,omitempty"`
}

// GraphSnapshot is the full persisted graph
type GraphSnapshot struct {
	Nodes []*PackageNode    `json:"nodes"`
	Edges []*DependencyEdge `json:"edges"`
}

// StoreStats aggregates counts over the stored graph
type StoreStats struct {
	NodeCount         int            `json:"nodeCount"`
	EdgeCount         int            `json:"edgeCount"`
	RequestedCount    int            `json:"requestedCount"`
	NodesPerEcosystem map[string]int `json:"nodesPerEcosystem"`
}
