package pip

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"depsweep/internal/config"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/logging"
)

const (
	// DefaultTimeout bounds the pip subprocess
	DefaultTimeout = 30 * time.Second

	toolName = "python3"
)

var wellKnownDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
}

// suppressionEnv keeps pip quiet and non-interactive during inspection
var suppressionEnv = map[string]string{
	"PIP_DISABLE_PIP_VERSION_CHECK": "1",
	"PIP_NO_INPUT":                  "1",
}

// Metadata captures the pip-specific fields kept on each node
type Metadata struct {
	Installer      string `json:"installer,omitempty"`
	RequiresPython string `json:"requiresPython,omitempty"`
	ReportedName   string `json:"reportedName,omitempty"` // pre-canonicalization spelling
}

// Adapter ingests pip distributions via `python3 -m pip inspect --local`
type Adapter struct {
	toolPath   string
	extraPaths []string
	timeout    time.Duration
	runner     ingest.CommandRunner
	logger     *logging.Logger
}

// New creates a pip adapter from its ecosystem configuration
func New(cfg config.EcosystemConfig, runner ingest.CommandRunner, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if runner == nil {
		runner = ingest.NewExecRunner(logger)
	}

	timeout := DefaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return &Adapter{
		toolPath:   cfg.ToolPath,
		extraPaths: cfg.ExtraPaths,
		timeout:    timeout,
		runner:     runner,
		logger:     logger,
	}
}

// Ecosystem returns the ecosystem this adapter ingests
func (a *Adapter) Ecosystem() identity.Ecosystem {
	return identity.EcosystemPip
}

// LocateTool resolves the python3 binary without running a scan
func (a *Adapter) LocateTool() (string, error) {
	return ingest.LocateExecutable(toolName, a.toolPath, a.extraPaths, wellKnownDirs)
}

// FetchInstalledRecords inventories the active interpreter's distributions
func (a *Adapter) FetchInstalledRecords(ctx context.Context) ingest.IngestionResult {
	start := time.Now()
	result := ingest.IngestionResult{Ecosystem: identity.EcosystemPip}
	defer func() { result.Duration = time.Since(start) }()

	tool, err := a.LocateTool()
	if err != nil {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemPip,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("python3 executable not found: %v", err),
			Recoverable: true,
		})
		return result
	}

	res, err := a.runner.Run(ctx, ingest.CommandSpec{
		Path:    tool,
		Args:    []string{"-m", "pip", "inspect", "--local"},
		Env:     suppressionEnv,
		Timeout: a.timeout,
	})
	if err != nil {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemPip,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("failed to run pip: %v", err),
			Recoverable: true,
		})
		return result
	}
	if res.TimedOut {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemPip,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("pip inspect timed out after %s", a.timeout),
			Recoverable: true,
		})
		return result
	}
	if len(res.Stdout) == 0 && res.ExitCode != 0 {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemPip,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("pip exited with code %d: %s", res.ExitCode, firstLine(res.Stderr)),
			Recoverable: true,
		})
		return result
	}

	records, parseErrs := a.parseInspectOutput(res.Stdout)
	result.Records = records
	result.Errors = append(result.Errors, parseErrs...)

	a.logger.Debug("pip ingestion complete", logging.Fields{
		"records": len(records),
		"errors":  len(result.Errors),
	})
	return result
}

// inspectDocument is the shape of `pip inspect --local`
type inspectDocument struct {
	Version   string         `json:"version"`
	Installed []installedDoc `json:"installed"`
}

type installedDoc struct {
	Metadata         distMetadata `json:"metadata"`
	MetadataLocation string       `json:"metadata_location"`
	Installer        string       `json:"installer"`
	Requested        bool         `json:"requested"`
}

type distMetadata struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	Summary           string   `json:"summary"`
	HomePage          string   `json:"home_page"`
	License           string   `json:"license"`
	LicenseExpression string   `json:"license_expression"`
	RequiresPython    string   `json:"requires_python"`
	RequiresDist      []string `json:"requires_dist"`
}

func (a *Adapter) parseInspectOutput(stdout []byte) ([]ingest.RawPackageRecord, []ingest.IngestionError) {
	var doc inspectDocument
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return nil, []ingest.IngestionError{{
			Ecosystem:   identity.EcosystemPip,
			Phase:       ingest.PhaseParse,
			Message:     fmt.Sprintf("failed to decode pip inspect output: %v", err),
			Recoverable: true,
		}}
	}

	home, _ := os.UserHomeDir()
	normalizer := identity.NewPathNormalizer(map[string]string{
		identity.PlaceholderPipBase: sitePackagesDir(doc),
		identity.PlaceholderHome:    home,
	})

	var records []ingest.RawPackageRecord
	var errs []ingest.IngestionError

	for _, dist := range doc.Installed {
		if dist.Metadata.Name == "" {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemPip,
				Phase:       ingest.PhaseParse,
				Message:     "distribution without a name skipped",
				Recoverable: true,
			})
			continue
		}

		installPath := ""
		if dist.MetadataLocation != "" {
			installPath = normalizer.Normalize(dist.MetadataLocation)
		}

		id := identity.PackageIdentity{
			Ecosystem: identity.EcosystemPip,
			Name:      canonicalName(dist.Metadata.Name),
			Version:   identity.NewVersion(dist.Metadata.Version),
		}
		if installPath != "" {
			id.Fingerprint = identity.ComputeFingerprint(installPath, "")
		}

		var deps []ingest.Dependency
		for _, spec := range dist.Metadata.RequiresDist {
			name, constraint, extraOnly := parseRequirement(spec)
			if name == "" || extraOnly {
				continue
			}
			deps = append(deps, ingest.Dependency{
				Name:       canonicalName(name),
				Constraint: identity.ParseConstraint(constraint),
			})
		}

		meta, err := json.Marshal(Metadata{
			Installer:      dist.Installer,
			RequiresPython: dist.Metadata.RequiresPython,
			ReportedName:   dist.Metadata.Name,
		})
		if err != nil {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemPip,
				Phase:       ingest.PhaseParse,
				Message:     fmt.Sprintf("failed to encode metadata for %s: %v", dist.Metadata.Name, err),
				Recoverable: true,
			})
			continue
		}

		records = append(records, ingest.RawPackageRecord{
			Identity:     id,
			InstallPath:  installPath,
			Description:  dist.Metadata.Summary,
			Homepage:     dist.Metadata.HomePage,
			License:      licenseOf(dist.Metadata),
			IsRequested:  dist.Requested,
			Dependencies: deps,
			Metadata:     meta,
		})
	}

	return records, errs
}

// parseRequirement splits one requires_dist specifier into the dependency
// name, its constraint portion, and whether the requirement is gated on an
// extra. Both the historical parenthesized form ("idna (<4,>=2.5)") and the
// modern compact form ("idna<4,>=2.5") occur in the wild.
func parseRequirement(spec string) (name, constraint string, extraOnly bool) {
	raw := spec
	marker := ""
	if idx := strings.Index(raw, ";"); idx >= 0 {
		marker = raw[idx+1:]
		raw = raw[:idx]
	}
	extraOnly = strings.Contains(strings.ReplaceAll(marker, " ", ""), "extra==")

	raw = strings.TrimSpace(raw)
	end := len(raw)
	for i, r := range raw {
		if strings.ContainsRune(" ([<>=!~,", r) {
			end = i
			break
		}
	}
	name = raw[:end]

	rest := strings.TrimSpace(raw[end:])
	if strings.HasPrefix(rest, "[") {
		if close := strings.Index(rest, "]"); close >= 0 {
			rest = strings.TrimSpace(rest[close+1:])
		}
	}
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	constraint = strings.TrimSpace(rest)

	return name, constraint, extraOnly
}

// canonicalName applies PEP 503 normalization: lowercase, with runs of
// '-', '_' and '.' collapsed to a single dash. requires_dist spellings and
// installed names only line up after this.
func canonicalName(raw string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if r == '-' || r == '_' || r == '.' {
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
			continue
		}
		prevDash = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "-")
}

// licenseOf prefers the SPDX license_expression over the free-form license
// field, which may hold an entire license body
func licenseOf(m distMetadata) string {
	if m.LicenseExpression != "" {
		return m.LicenseExpression
	}
	license := firstLine(m.License)
	if len(license) > 100 {
		license = license[:100]
	}
	return license
}

// sitePackagesDir recovers the site-packages directory from the first
// distribution's metadata location
func sitePackagesDir(doc inspectDocument) string {
	for _, dist := range doc.Installed {
		if dist.MetadataLocation != "" {
			return filepath.Dir(dist.MetadataLocation)
		}
	}
	return ""
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
