package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depsweep/internal/ingest"
	"depsweep/internal/ingest/registry"
	"depsweep/internal/paths"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose depsweep and its package managers",
	Long: `Check whether the package managers behind each enabled ecosystem can be
found, and where depsweep keeps its configuration and database. Runs no
scan.

Examples:
  depsweep doctor
  depsweep doctor --json`,
	Run: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorReport contains diagnostic results for CLI output
type DoctorReport struct {
	Healthy        bool             `json:"healthy"`
	ConfigHome     string           `json:"configHome"`
	DatabasePath   string           `json:"databasePath"`
	DatabaseExists bool             `json:"databaseExists"`
	Ecosystems     []EcosystemCheck `json:"ecosystems"`
}

// EcosystemCheck represents a single ecosystem diagnostic
type EcosystemCheck struct {
	Ecosystem string `json:"ecosystem"`
	Enabled   bool   `json:"enabled"`
	ToolPath  string `json:"toolPath,omitempty"`
	Message   string `json:"message,omitempty"`
}

func runDoctor(cmd *cobra.Command, args []string) {
	logger := newLogger()
	cfg := loadConfig()
	runner := ingest.NewExecRunner(logger)

	report := &DoctorReport{Healthy: true}

	if home, err := paths.GetHome(); err == nil {
		report.ConfigHome = home
	} else {
		report.ConfigHome = "unresolvable: " + err.Error()
		report.Healthy = false
	}

	if dbPath, err := cfg.ResolveDatabasePath(); err == nil {
		report.DatabasePath = dbPath
		if _, err := os.Stat(dbPath); err == nil {
			report.DatabaseExists = true
		}
	} else {
		report.DatabasePath = "unresolvable: " + err.Error()
		report.Healthy = false
	}

	// Every known ecosystem is reported, including disabled ones
	for _, eco := range registry.Ecosystems() {
		ecoCfg := cfg.Ecosystem(eco)
		check := EcosystemCheck{
			Ecosystem: string(eco),
			Enabled:   ecoCfg.Enabled,
		}

		adapter, ok := registry.NewAdapter(eco, ecoCfg, runner, logger)
		if !ok {
			check.Message = "no adapter registered"
		} else if locator, ok := adapter.(ingest.ToolLocator); ok {
			if path, err := locator.LocateTool(); err != nil {
				check.Message = err.Error()
				if ecoCfg.Enabled {
					report.Healthy = false
				}
			} else {
				check.ToolPath = path
			}
		}

		report.Ecosystems = append(report.Ecosystems, check)
	}

	output, err := FormatResponse(report, outputFormat(doctorJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)

	if !report.Healthy {
		os.Exit(1)
	}
}
