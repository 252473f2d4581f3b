package brew

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"depsweep/internal/config"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/logging"
)

const (
	// DefaultTimeout bounds the brew subprocess; brew is slow on cold caches
	DefaultTimeout = 60 * time.Second

	toolName = "brew"
)

// wellKnownDirs are searched before $PATH: Apple Silicon, Intel mac, Linuxbrew
var wellKnownDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/home/linuxbrew/.linuxbrew/bin",
}

// suppressionEnv keeps brew from updating itself or phoning home mid-scan
var suppressionEnv = map[string]string{
	"HOMEBREW_NO_AUTO_UPDATE":     "1",
	"HOMEBREW_NO_ANALYTICS":       "1",
	"HOMEBREW_NO_INSTALL_UPGRADE": "1",
}

// Metadata captures the Homebrew-specific fields kept on each node
type Metadata struct {
	FullName              string   `json:"fullName,omitempty"`
	Tap                   string   `json:"tap,omitempty"`
	Aliases               []string `json:"aliases,omitempty"`
	KegOnly               bool     `json:"kegOnly,omitempty"`
	Pinned                bool     `json:"pinned,omitempty"`
	Outdated              bool     `json:"outdated,omitempty"`
	InstalledAsDependency bool     `json:"installedAsDependency,omitempty"`
}

// Adapter ingests Homebrew formulae via `brew info --json=v2 --installed`
type Adapter struct {
	toolPath   string
	extraPaths []string
	timeout    time.Duration
	runner     ingest.CommandRunner
	logger     *logging.Logger
}

// New creates a brew adapter from its ecosystem configuration
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
	return identity.EcosystemBrew
}

// LocateTool resolves the brew binary without running a scan
func (a *Adapter) LocateTool() (string, error) {
	return ingest.LocateExecutable(toolName, a.toolPath, a.extraPaths, wellKnownDirs)
}

// FetchInstalledRecords inventories every installed formula. Casks are out
// of scope. All failures are reported inside the result.
func (a *Adapter) FetchInstalledRecords(ctx context.Context) ingest.IngestionResult {
	start := time.Now()
	result := ingest.IngestionResult{Ecosystem: identity.EcosystemBrew}
	defer func() { result.Duration = time.Since(start) }()

	tool, err := a.LocateTool()
	if err != nil {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemBrew,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("brew executable not found: %v", err),
			Recoverable: true,
		})
		return result
	}

	res, err := a.runner.Run(ctx, ingest.CommandSpec{
		Path:    tool,
		Args:    []string{"info", "--json=v2", "--installed"},
		Env:     suppressionEnv,
		Timeout: a.timeout,
	})
	if err != nil {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemBrew,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("failed to run brew: %v", err),
			Recoverable: true,
		})
		return result
	}
	if res.TimedOut {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemBrew,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("brew info timed out after %s", a.timeout),
			Recoverable: true,
		})
		return result
	}
	if len(res.Stdout) == 0 && res.ExitCode != 0 {
		result.Errors = append(result.Errors, ingest.IngestionError{
			Ecosystem:   identity.EcosystemBrew,
			Phase:       ingest.PhaseExecute,
			Message:     fmt.Sprintf("brew exited with code %d: %s", res.ExitCode, firstLine(res.Stderr)),
			Recoverable: true,
		})
		return result
	}

	records, parseErrs := a.parseInfoOutput(res.Stdout, brewPrefixFor(tool))
	result.Records = records
	result.Errors = append(result.Errors, parseErrs...)

	a.logger.Debug("brew ingestion complete", logging.Fields{
		"records": len(records),
		"errors":  len(result.Errors),
	})
	return result
}

// infoDocument is the shape of `brew info --json=v2`
type infoDocument struct {
	Formulae []formulaDoc `json:"formulae"`
}

type formulaDoc struct {
	Name         string   `json:"name"`
	FullName     string   `json:"full_name"`
	Tap          string   `json:"tap"`
	Desc         string   `json:"desc"`
	License      string   `json:"license"`
	Homepage     string   `json:"homepage"`
	Aliases      []string `json:"aliases"`
	Dependencies []string `json:"dependencies"`
	Installed    []kegDoc `json:"installed"`
	Pinned       bool     `json:"pinned"`
	Outdated     bool     `json:"outdated"`
	KegOnly      bool     `json:"keg_only"`
}

type kegDoc struct {
	Version               string `json:"version"`
	InstalledAsDependency bool   `json:"installed_as_dependency"`
	InstalledOnRequest    bool   `json:"installed_on_request"`
}

func (a *Adapter) parseInfoOutput(stdout []byte, prefix string) ([]ingest.RawPackageRecord, []ingest.IngestionError) {
	var doc infoDocument
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return nil, []ingest.IngestionError{{
			Ecosystem:   identity.EcosystemBrew,
			Phase:       ingest.PhaseParse,
			Message:     fmt.Sprintf("failed to decode brew info output: %v", err),
			Recoverable: true,
		}}
	}

	home, _ := os.UserHomeDir()
	normalizer := identity.NewPathNormalizer(map[string]string{
		identity.PlaceholderBrewPrefix: prefix,
		identity.PlaceholderHome:       home,
	})

	var records []ingest.RawPackageRecord
	var errs []ingest.IngestionError

	for _, formula := range doc.Formulae {
		if formula.Name == "" {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemBrew,
				Phase:       ingest.PhaseParse,
				Message:     "formula entry without a name skipped",
				Recoverable: true,
			})
			continue
		}
		if len(formula.Installed) == 0 {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemBrew,
				Phase:       ingest.PhaseParse,
				Message:     fmt.Sprintf("formula %s has no installed keg", formula.Name),
				Recoverable: true,
			})
			continue
		}

		// The last keg is the most recently installed version
		keg := formula.Installed[len(formula.Installed)-1]

		installPath := normalizer.Normalize(filepath.Join(prefix, "opt", formula.Name))

		// Formula names like openssl@3 are names, never scopes
		id := identity.PackageIdentity{
			Ecosystem: identity.EcosystemBrew,
			Name:      formula.Name,
			Version:   identity.NewVersion(keg.Version),
		}
		id.Fingerprint = identity.ComputeFingerprint(installPath, "")

		deps := make([]ingest.Dependency, 0, len(formula.Dependencies))
		for _, dep := range formula.Dependencies {
			if dep == "" {
				continue
			}
			deps = append(deps, ingest.Dependency{Name: dep, Constraint: identity.AnyVersion()})
		}

		meta, err := json.Marshal(Metadata{
			FullName:              formula.FullName,
			Tap:                   formula.Tap,
			Aliases:               formula.Aliases,
			KegOnly:               formula.KegOnly,
			Pinned:                formula.Pinned,
			Outdated:              formula.Outdated,
			InstalledAsDependency: keg.InstalledAsDependency,
		})
		if err != nil {
			errs = append(errs, ingest.IngestionError{
				Ecosystem:   identity.EcosystemBrew,
				Phase:       ingest.PhaseParse,
				Message:     fmt.Sprintf("failed to encode metadata for %s: %v", formula.Name, err),
				Recoverable: true,
			})
			continue
		}

		records = append(records, ingest.RawPackageRecord{
			Identity:     id,
			InstallPath:  installPath,
			Description:  formula.Desc,
			Homepage:     formula.Homepage,
			License:      formula.License,
			IsRequested:  keg.InstalledOnRequest,
			Dependencies: deps,
			Metadata:     meta,
		})
	}

	return records, errs
}

// brewPrefixFor derives the Homebrew prefix from the brew binary location
// (the binary always lives at <prefix>/bin/brew)
func brewPrefixFor(tool string) string {
	return filepath.Dir(filepath.Dir(tool))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
