// Package export renders stored graph snapshots into portable files for
// external tooling. The document shape is stable and decoupled from the
// storage row types.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"depsweep/internal/logging"
	"depsweep/internal/storage"
	"depsweep/internal/version"
)

// Format selects the on-disk encoding of an export
type Format string

const (
	// FormatJSON is indented JSON
	FormatJSON Format = "json"
	// FormatYAML is YAML
	FormatYAML Format = "yaml"
	// FormatJSONGz is gzip-compressed JSON
	FormatJSONGz Format = "json.gz"
)

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json.gz", "gz":
		return FormatJSONGz, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, yaml or json.gz)", s)
}

// DetectFormat infers the format from a file name. Unrecognized names
// default to JSON
func DetectFormat(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".gz"):
		return FormatJSONGz
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is one exported snapshot with its provenance header
type Document struct {
	Tool        string    `json:"tool" yaml:"tool"`
	Version     string    `json:"version" yaml:"version"`
	GeneratedAt string    `json:"generatedAt" yaml:"generatedAt"`
	NodeCount   int       `json:"nodeCount" yaml:"nodeCount"`
	EdgeCount   int       `json:"edgeCount" yaml:"edgeCount"`
	Nodes       []NodeRow `json:"nodes" yaml:"nodes"`
	Edges       []EdgeRow `json:"edges" yaml:"edges"`
}

// NodeRow is one package in the export
type NodeRow struct {
	CanonicalKey string                 `json:"canonicalKey" yaml:"canonicalKey"`
	Ecosystem    string                 `json:"ecosystem" yaml:"ecosystem"`
	Scope        string                 `json:"scope,omitempty" yaml:"scope,omitempty"`
	Name         string                 `json:"name" yaml:"name"`
	Version      string                 `json:"version" yaml:"version"`
	VersionKnown bool                   `json:"versionKnown" yaml:"versionKnown"`
	Fingerprint  string                 `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	InstallPath  string                 `json:"installPath,omitempty" yaml:"installPath,omitempty"`
	SizeBytes    *int64                 `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
	Description  string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage     string                 `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	License      string                 `json:"license,omitempty" yaml:"license,omitempty"`
	IsRequested  bool                   `json:"isRequested" yaml:"isRequested"`
	RecordedAt   string                 `json:"recordedAt" yaml:"recordedAt"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EdgeRow is one dependency declaration in the export. Source is a
// canonical key, target a "ecosystem::name" reference
type EdgeRow struct {
	Source         string `json:"source" yaml:"source"`
	Target         string `json:"target" yaml:"target"`
	ConstraintKind string `json:"constraintKind" yaml:"constraintKind"`
	Constraint     string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// Exporter writes graph snapshots in the supported formats
type Exporter struct {
	logger *logging.Logger
}

// NewExporter creates an exporter
func NewExporter(logger *logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Exporter{logger: logger}
}

// BuildDocument projects a snapshot into the export document shape
func (e *Exporter) BuildDocument(snapshot *storage.GraphSnapshot) *Document {
	doc := &Document{
		Tool:        "depsweep",
		Version:     version.Version,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		NodeCount:   len(snapshot.Nodes),
		EdgeCount:   len(snapshot.Edges),
		Nodes:       make([]NodeRow, 0, len(snapshot.Nodes)),
		Edges:       make([]EdgeRow, 0, len(snapshot.Edges)),
	}

	for _, node := range snapshot.Nodes {
		doc.Nodes = append(doc.Nodes, e.nodeRow(node))
	}
	for _, edge := range snapshot.Edges {
		doc.Edges = append(doc.Edges, EdgeRow{
			Source:         edge.SourceKey,
			Target:         edge.Target.Key(),
			ConstraintKind: string(edge.Constraint.Kind),
			Constraint:     edge.Constraint.Raw,
		})
	}

	return doc
}

func (e *Exporter) nodeRow(node *storage.PackageNode) NodeRow {
	row := NodeRow{
		CanonicalKey: node.Identity.CanonicalKey(),
		Ecosystem:    string(node.Identity.Ecosystem),
		Scope:        node.Identity.Scope,
		Name:         node.Identity.Name,
		Version:      node.Identity.Version.Normalized(),
		VersionKnown: node.Identity.Version.Known,
		Fingerprint:  node.Identity.Fingerprint,
		InstallPath:  node.InstallPath,
		SizeBytes:    node.SizeBytes,
		Description:  node.Description,
		Homepage:     node.Homepage,
		License:      node.License,
		IsRequested:  node.IsRequested,
		RecordedAt:   node.RecordedAt.UTC().Format(time.RFC3339),
	}

	if len(node.Metadata) > 0 {
		var meta map[string]interface{}
		if err := json.Unmarshal(node.Metadata, &meta); err != nil {
			e.logger.Warn("Skipping undecodable node metadata", logging.Fields{
				"package": node.Identity.Ref().Key(),
				"error":   err.Error(),
			})
		} else {
			row.Metadata = meta
		}
	}

	return row
}

// Write encodes the document onto w in the given format
func (e *Exporter) Write(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode export: %w", err)
		}
		return nil

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			_ = enc.Close()
			return fmt.Errorf("failed to encode export: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush export: %w", err)
		}
		return nil

	case FormatJSONGz:
		gz := gzip.NewWriter(w)
		if err := json.NewEncoder(gz).Encode(doc); err != nil {
			_ = gz.Close()
			return fmt.Errorf("failed to encode export: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to flush compressed export: %w", err)
		}
		return nil
	}

	return fmt.Errorf("unknown export format %q", format)
}

// WriteFile encodes the document into a file, creating parent directories
// as needed
func (e *Exporter) WriteFile(path string, doc *Document, format Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	if err := e.Write(f, doc, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}

	e.logger.Info("Export written", logging.Fields{
		"path":   path,
		"format": string(format),
		"nodes":  doc.NodeCount,
		"edges":  doc.EdgeCount,
	})

	return nil
}
