package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depsweep/internal/graph"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify declared version constraints",
	Long: `Check every dependency declaration in the graph against the installed
version of its target. Constraints that cannot be compared (non-semver
versions, unsupported range syntax) are reported as unverifiable, not as
violations.

Exits non-zero when a constraint is violated.

Examples:
  depsweep check
  depsweep check --json`,
	Run: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	report, err := service.VerifyConstraints()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying constraints: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(report, outputFormat(checkJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)

	for _, finding := range report.Findings {
		if finding.Status == graph.StatusViolated {
			os.Exit(1)
		}
	}
}
