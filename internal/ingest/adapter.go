package ingest

import (
	"context"
	"encoding/json"
	"time"

	"depsweep/internal/identity"
)

// Phase identifies where in the ingestion pipeline a failure occurred
type Phase string

const (
	// PhaseFetch covers adapter setup before the subprocess starts
	PhaseFetch Phase = "fetch"
	// PhaseExecute covers subprocess launch, runtime, and exit
	PhaseExecute Phase = "execute"
	// PhaseParse covers decoding of the tool's output
	PhaseParse Phase = "parse"
	// PhaseStore covers persisting the assembled graph
	PhaseStore Phase = "store"
)

// IngestionError describes one ingestion failure. Failures are values inside
// results, never Go errors: a broken package manager must not abort the scan.
type IngestionError struct {
	Ecosystem   identity.Ecosystem `json:"ecosystem"`
	Phase       Phase              `json:"phase"`
	Message     string             `json:"message"`
	Recoverable bool               `json:"recoverable"`
}

// String renders the error for logs
func (e IngestionError) String() string {
	return string(e.Ecosystem) + "/" + string(e.Phase) + ": " + e.Message
}

// Dependency is a declared requirement on another package, by raw name
type Dependency struct {
	Name       string                     `json:"name"`
	Constraint identity.VersionConstraint `json:"constraint"`
}

// RawPackageRecord is one installed package as reported by its manager
type RawPackageRecord struct {
	Identity identity.PackageIdentity `json:"identity"`

	// InstallPath is the normalized (placeholder) install location
	InstallPath string `json:"installPath,omitempty"`

	SizeBytes   *int64 `json:"sizeBytes,omitempty"`
	Description string `json:"description,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	License     string `json:"license,omitempty"`

	// IsRequested is true when a human asked for this package directly
	IsRequested bool `json:"isRequested"`

	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Metadata holds the ecosystem-specific fields, decoded later by
	// ecosystem id
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// IngestionResult is everything one adapter learned during a scan
type IngestionResult struct {
	Ecosystem identity.Ecosystem `json:"ecosystem"`
	Records   []RawPackageRecord `json:"records"`
	Errors    []IngestionError   `json:"errors,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Adapter ingests one package manager's installed inventory.
// FetchInstalledRecords never returns a Go error and never panics; every
// failure mode becomes an IngestionError inside the result.
type Adapter interface {
	Ecosystem() identity.Ecosystem
	FetchInstalledRecords(ctx context.Context) IngestionResult
}

// ToolLocator is implemented by adapters that can report their tool binary
// without running a scan
type ToolLocator interface {
	LocateTool() (string, error)
}
