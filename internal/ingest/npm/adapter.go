package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"depsweep/internal/config"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/logging"
)

const (
	// DefaultTimeout bounds the npm subprocess
	DefaultTimeout = 30 * time.Second

	toolName = "npm"
)

var wellKnownDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
}

// suppressionEnv silences the update notifier, which writes to stdout on
// some npm versions and would corrupt the JSON stream
var suppressionEnv = map[string]string{
	"NO_UPDATE_NOTIFIER":         "1",
	"npm_config_update_notifier": "false",
}

// Metadata captures the npm-specific fields kept on each node
type Metadata struct {
	Resolved   string `json:"resolved,omitempty"`
	Extraneous bool   `json:"extraneous,omitempty"`
}

// Adapter ingests npm global packages via `npm ls -g --json --long --depth=0`
type Adapter struct {
	toolPath   string
	extraPaths []string
	timeout    time.Duration
	runner     ingest.CommandRunner
	logger     *logging.Logger
}

// New creates an npm adapter from its ecosystem configuration
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
	return identity.EcosystemNpm
}

// LocateTool resolves the npm binary without running a scan
func (a *Adapter) LocateTool() (string, error) {
	return ingest.LocateExecutable(toolName, a.toolPath, a.extraPaths, wellKnownDirs)
}

// FetchInstalledRecords inventories the global npm install tree. Every
// global package counts as requested: a human ran `npm install -g`.
func (a *Adapter) FetchInstalledRecords(ctx context.Context) ingest.IngestionResult {
	start := time.Now()
	result := ingest.IngestionResult{Ecosystem: identity.EcosystemNpm}
	defer func() { result.Duration = time.Since(start) }()

	tool, err := a.LocateTool()
	if err != nil {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemNpm,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("npm executable not found: %v", err),
			Recoverable: true,
		})
		return result
	}

	res, err := a.runner.Run(ctx, ingest.CommandSpec{
		Path:    tool,
		Args:    []string{"ls", "-g", "--json", "--long", "--depth=0"},
		Env:     suppressionEnv,
		Timeout: a.timeout,
	})
	if err != nil {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemNpm,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("failed to run npm: %v", err),
			Recoverable: true,
		})
		return result
	}
	if res.TimedOut {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemNpm,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("npm ls timed out after %s", a.timeout),
			Recoverable: true,
		})
		return result
	}

	// npm ls exits non-zero for extraneous or invalid trees while still
	// printing a usable inventory; only an empty stdout is fatal
	if len(res.Stdout) == 0 && res.ExitCode != 0 {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemNpm,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("npm exited with code %d: %s", res.ExitCode, firstLine(res.Stderr)),
			Recoverable: true,
		})
		return result
	}

	records, parseErrs := a.parseLsOutput(res.Stdout)
	result.Records = records
	result.Errors = append(result.Errors, parseErrs...)

	a.logger.Debug("npm ingestion complete", logging.Fields{
		"records": len(records),
		"errors":  len(result.Errors),
	})
	return result
}

// lsDocument is the shape of `npm ls -g --json --long --depth=0`
type lsDocument struct {
	Dependencies map[string]packageDoc `json:"dependencies"`
}

type packageDoc struct {
	Version     string       `json:"version"`
	Description string       `json:"description"`
	Homepage    string       `json:"homepage"`
	License     licenseField `json:"license"`
	Path        string       `json:"path"`
	Resolved    string       `json:"resolved"`
	Extraneous  bool         `json:"extraneous"`

	// Dependencies is the declared runtime map from package.json, which
	// npm ls --long exposes as _dependencies
	Dependencies map[string]string `json:"_dependencies"`
}

// licenseField tolerates both the modern string form and the legacy
// {"type": ..., "url": ...} object form
type licenseField string

func (l *licenseField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = licenseField(s)
		return nil
	}
	var legacy struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &legacy); err == nil {
		*l = licenseField(legacy.Type)
		return nil
	}
	*l = ""
	return nil
}

func (a *Adapter) parseLsOutput(stdout []byte) ([]ingest.RawPackageRecord, []ingest.IngestionError) {
	var doc lsDocument
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return nil, []ingest.IngestionError{{
			Ecosystem:   identity.EcosystemNpm,
			Phase:       ingest.PhaseParse,
			Message:     fmt.Sprintf("failed to decode npm ls output: %v", err),
			Recoverable: true,
		}}
	}

	home, _ := os.UserHomeDir()
	normalizer := identity.NewPathNormalizer(map[string]string{
		identity.PlaceholderNpmPrefix: globalPrefix(doc),
		identity.PlaceholderHome:      home,
	})

	var records []ingest.RawPackageRecord
	var errs []ingest.IngestionError

	for fullName, pkg := range doc.Dependencies {
		if fullName == "" {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemNpm,
				Phase:       ingest.PhaseParse,
				Message:     "package entry without a name skipped",
				Recoverable: true,
			})
			continue
		}

		scope, name := identity.SplitScopedName(fullName)

		installPath := ""
		if pkg.Path != "" {
			installPath = normalizer.Normalize(pkg.Path)
		}

		id := identity.PackageIdentity{
			Ecosystem: identity.EcosystemNpm,
			Scope:     scope,
			Name:      name,
			Version:   identity.NewVersion(pkg.Version),
		}
		if installPath != "" {
			id.Fingerprint = identity.ComputeFingerprint(installPath, "")
		}

		deps := make([]ingest.Dependency, 0, len(pkg.Dependencies))
		for depName, depRange := range pkg.Dependencies {
			if depName == "" {
				continue
			}
			deps = append(deps, ingest.Dependency{
				Name:       depName,
				Constraint: identity.ParseConstraint(depRange),
			})
		}

		meta, err := json.Marshal(Metadata{
			Resolved:   pkg.Resolved,
			Extraneous: pkg.Extraneous,
		})
		if err != nil {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemNpm,
				Phase:       ingest.PhaseParse,
				Message:     fmt.Sprintf("failed to encode metadata for %s: %v", fullName, err),
				Recoverable: true,
			})
			continue
		}

		records = append(records, ingest.RawPackageRecord{
			Identity:     id,
			InstallPath:  installPath,
			Description:  pkg.Description,
			Homepage:     pkg.Homepage,
			License:      string(pkg.License),
			IsRequested:  true,
			Dependencies: deps,
			Metadata:     meta,
		})
	}

	return records, errs
}

// globalPrefix recovers the npm prefix from the install paths: global
// packages live at <prefix>/lib/node_modules/<name> (or without lib on
// Windows layouts)
func globalPrefix(doc lsDocument) string {
	for _, pkg := range doc.Dependencies {
		if pkg.Path == "" {
			continue
		}
		if idx := strings.Index(pkg.Path, "/lib/node_modules/"); idx > 0 {
			return pkg.Path[:idx]
		}
		if idx := strings.Index(pkg.Path, "/node_modules/"); idx > 0 {
			return pkg.Path[:idx]
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
