// Package graph provides the orchestration service over the ingestion
// adapters and the graph store. It owns every store write: adapters run
// concurrently, the service joins their results and performs the single
// replace transaction itself.
package graph

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"depsweep/internal/errors"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/logging"
	"depsweep/internal/storage"
)

// Service coordinates scans and graph queries
type Service struct {
	store    *storage.Store
	adapters []ingest.Adapter
	logger   *logging.Logger

	initOnce sync.Once
}

// NewService creates the graph service. Adapters are injected by the
// caller; the service does not construct them itself
func NewService(store *storage.Store, adapters []ingest.Adapter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Service{
		store:    store,
		adapters: adapters,
		logger:   logger,
	}
}

// Initialize prepares the service for use. Safe to call more than once
func (s *Service) Initialize() {
	s.initOnce.Do(func() {
		s.logger.Debug("Graph service initialized", logging.Fields{
			"adapters": len(s.adapters),
		})
	})
}

// ScanSummary describes the outcome of one full scan
type ScanSummary struct {
	ScanID     string         `json:"scanId"`
	StartedAt  time.Time      `json:"startedAt"`
	Duration   time.Duration  `json:"duration"`
	NodeCount  int            `json:"nodeCount"`
	EdgeCount  int            `json:"edgeCount"`
	Ecosystems map[string]int `json:"ecosystems"`
	Errors     []string       `json:"errors,omitempty"`
}

// IsSuccess reports whether the scan completed without any error
func (s *ScanSummary) IsSuccess() bool {
	return len(s.Errors) == 0
}

// IsPartial reports whether the scan produced data despite errors
func (s *ScanSummary) IsPartial() bool {
	return len(s.Errors) > 0 && s.NodeCount > 0
}

// IsFailure reports whether the scan produced nothing but errors
func (s *ScanSummary) IsFailure() bool {
	return len(s.Errors) > 0 && s.NodeCount == 0
}

// ScanAll runs every adapter, joins the results and replaces the stored
// graph. One failing ecosystem never aborts the others; its errors are
// carried in the summary. Cancellation is honored between ingestion and
// the store write
func (s *Service) ScanAll(ctx context.Context) (*ScanSummary, error) {
	s.Initialize()

	started := time.Now()
	summary := &ScanSummary{
		ScanID:     uuid.New().String(),
		StartedAt:  started,
		Ecosystems: make(map[string]int),
	}

	s.logger.Info("Starting scan", logging.Fields{
		"scan_id":  summary.ScanID,
		"adapters": len(s.adapters),
	})

	results := make([]ingest.IngestionResult, len(s.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range s.adapters {
		i, adapter := i, adapter // capture loop vars
		g.Go(func() error {
			results[i] = adapter.FetchInstalledRecords(gctx)
			return nil
		})
	}
	// Adapters never return errors; the group exists for the shared context
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewSweepError(errors.Canceled, "scan canceled before store write", err)
	}

	nodes, edges := s.assemble(results, started, summary)

	if err := s.store.ReplaceAll(nodes, edges); err != nil {
		// Counts computed so far are kept; the failure travels in the summary
		summary.Errors = append(summary.Errors, ingest.IngestionError{
			Phase:       ingest.PhaseStore,
			Message:     err.Error(),
			Recoverable: false,
		}.String())
		s.logger.Error("Store write failed", logging.Fields{
			"scan_id": summary.ScanID,
			"error":   err.Error(),
		})
	}

	summary.Duration = time.Since(started)

	// Scan history is best effort
	if err := s.store.RecordScan(&storage.ScanRecord{
		ScanID:     summary.ScanID,
		StartedAt:  started,
		Duration:   summary.Duration,
		NodeCount:  summary.NodeCount,
		EdgeCount:  summary.EdgeCount,
		ErrorCount: len(summary.Errors),
		Errors:     summary.Errors,
	}); err != nil {
		s.logger.Warn("Failed to record scan history", logging.Fields{
			"scan_id": summary.ScanID,
			"error":   err.Error(),
		})
	}

	s.logger.Info("Scan complete", logging.Fields{
		"scan_id": summary.ScanID,
		"nodes":   summary.NodeCount,
		"edges":   summary.EdgeCount,
		"errors":  len(summary.Errors),
		"ms":      summary.Duration.Milliseconds(),
	})

	return summary, nil
}

// assemble projects ingestion results into storage rows and fills the
// summary counts
func (s *Service) assemble(results []ingest.IngestionResult, recordedAt time.Time, summary *ScanSummary) ([]*storage.PackageNode, []*storage.DependencyEdge) {
	var nodes []*storage.PackageNode
	var edges []*storage.DependencyEdge

	for _, result := range results {
		for _, ingErr := range result.Errors {
			summary.Errors = append(summary.Errors, ingErr.String())
		}

		for _, rec := range result.Records {
			nodes = append(nodes, &storage.PackageNode{
				Identity:    rec.Identity,
				InstallPath: rec.InstallPath,
				SizeBytes:   rec.SizeBytes,
				Description: rec.Description,
				Homepage:    rec.Homepage,
				License:     rec.License,
				Metadata:    rec.Metadata,
				IsRequested: rec.IsRequested,
				RecordedAt:  recordedAt,
			})
			summary.Ecosystems[string(rec.Identity.Ecosystem)]++

			sourceKey := rec.Identity.CanonicalKey()
			for _, dep := range rec.Dependencies {
				scope, name := identity.SplitScopedName(dep.Name)
				edges = append(edges, &storage.DependencyEdge{
					SourceKey: sourceKey,
					Target: identity.PackageRef{
						Ecosystem: rec.Identity.Ecosystem,
						Scope:     scope,
						Name:      name,
					},
					Constraint: dep.Constraint,
				})
			}
		}
	}

	summary.NodeCount = len(nodes)
	summary.EdgeCount = len(edges)

	return nodes, edges
}

// RemovalImpact describes what breaks if a package is removed
type RemovalImpact struct {
	Targets          []*storage.PackageNode `json:"targets"`
	DirectDependents []*storage.PackageNode `json:"directDependents"`
	AllDependents    []*storage.PackageNode `json:"allDependents"`
	SafeToRemove     bool                   `json:"safeToRemove"`
}

// SimulateRemoval computes the transitive set of installed packages that
// depend on the given one. The target may be a canonical key or an
// "ecosystem::name" / "ecosystem::scope/name" reference. The walk is
// breadth-first with a visited set, so dependency cycles terminate
func (s *Service) SimulateRemoval(target string) (*RemovalImpact, error) {
	targets, err := s.resolveTarget(target)
	if err != nil {
		return nil, err
	}

	impact := &RemovalImpact{Targets: targets}

	visited := make(map[string]bool)
	for _, node := range targets {
		visited[node.Identity.CanonicalKey()] = true
	}

	var frontier []*storage.PackageNode
	frontier = append(frontier, targets...)

	depth := 0
	for len(frontier) > 0 {
		var next []*storage.PackageNode

		for _, node := range frontier {
			dependents, err := s.dependentNodes(node.Identity.Ref())
			if err != nil {
				return nil, err
			}

			for _, dep := range dependents {
				key := dep.Identity.CanonicalKey()
				if visited[key] {
					continue
				}
				visited[key] = true

				if depth == 0 {
					impact.DirectDependents = append(impact.DirectDependents, dep)
				}
				impact.AllDependents = append(impact.AllDependents, dep)
				next = append(next, dep)
			}
		}

		frontier = next
		depth++
	}

	impact.SafeToRemove = len(impact.AllDependents) == 0

	return impact, nil
}

// resolveTarget turns a user-supplied package reference into stored nodes
func (s *Service) resolveTarget(target string) ([]*storage.PackageNode, error) {
	// A full canonical key addresses exactly one node
	if _, err := identity.ParseCanonicalKey(target); err == nil {
		node, err := s.store.GetNode(target)
		if err != nil {
			return nil, err
		}
		if node != nil {
			return []*storage.PackageNode{node}, nil
		}
		return nil, errors.NewSweepError(errors.NotFound, "package not installed: "+target, nil)
	}

	ref, err := parseRef(target)
	if err != nil {
		return nil, err
	}

	nodes, err := s.store.FindByRef(ref)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errors.NewSweepError(errors.NotFound, "package not installed: "+target, nil)
	}

	return nodes, nil
}

// dependentNodes resolves the incoming edges of a reference to installed
// nodes. Dangling dependents cannot exist: an edge's source is always a
// stored node
func (s *Service) dependentNodes(ref identity.PackageRef) ([]*storage.PackageNode, error) {
	edges, err := s.store.Dependents(ref)
	if err != nil {
		return nil, err
	}

	var nodes []*storage.PackageNode
	seen := make(map[string]bool)
	for _, edge := range edges {
		if seen[edge.SourceKey] {
			continue
		}
		seen[edge.SourceKey] = true

		node, err := s.store.GetNode(edge.SourceKey)
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}

	return nodes, nil
}

// parseRef parses "ecosystem::name", "ecosystem::@scope/name" or
// "ecosystem::scope/name"
func parseRef(target string) (identity.PackageRef, error) {
	idx := strings.Index(target, "::")
	if idx <= 0 || idx+2 >= len(target) {
		return identity.PackageRef{}, errors.NewSweepError(errors.NotFound,
			"invalid package reference (want ecosystem::name): "+target, nil)
	}

	eco := target[:idx]
	rest := target[idx+2:]

	scope, name := identity.SplitScopedName(rest)
	if scope == "" {
		if slash := strings.Index(rest, "/"); slash > 0 {
			scope, name = rest[:slash], rest[slash+1:]
		}
	}

	return identity.PackageRef{
		Ecosystem: identity.Ecosystem(eco),
		Scope:     scope,
		Name:      name,
	}, nil
}

// GraphStatistics aggregates the stored graph for reporting
type GraphStatistics struct {
	NodeCount         int                 `json:"nodeCount"`
	EdgeCount         int                 `json:"edgeCount"`
	RequestedCount    int                 `json:"requestedCount"`
	OrphanCount       int                 `json:"orphanCount"`
	TotalSizeBytes    int64               `json:"totalSizeBytes"`
	NodesPerEcosystem map[string]int      `json:"nodesPerEcosystem"`
	LatestScan        *storage.ScanRecord `json:"latestScan,omitempty"`
}

// Statistics summarizes the stored graph
func (s *Service) Statistics() (*GraphStatistics, error) {
	storeStats, err := s.store.Stats()
	if err != nil {
		return nil, err
	}

	orphans, err := s.store.OrphanNodes()
	if err != nil {
		return nil, err
	}

	nodes, err := s.store.ListNodes()
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, node := range nodes {
		if node.SizeBytes != nil {
			totalSize += *node.SizeBytes
		}
	}

	latest, err := s.store.LatestScan()
	if err != nil {
		return nil, err
	}

	return &GraphStatistics{
		NodeCount:         storeStats.NodeCount,
		EdgeCount:         storeStats.EdgeCount,
		RequestedCount:    storeStats.RequestedCount,
		OrphanCount:       len(orphans),
		TotalSizeBytes:    totalSize,
		NodesPerEcosystem: storeStats.NodesPerEcosystem,
		LatestScan:        latest,
	}, nil
}

// Orphans returns packages nothing depends on that were not explicitly
// requested
func (s *Service) Orphans() ([]*storage.PackageNode, error) {
	return s.store.OrphanNodes()
}

// Snapshot returns the stored graph with dangling edges filtered
func (s *Service) Snapshot() (*storage.GraphSnapshot, error) {
	return s.store.Snapshot()
}

// History returns recent scan records, newest first
func (s *Service) History(limit int) ([]*storage.ScanRecord, error) {
	return s.store.ListScans(limit)
}
