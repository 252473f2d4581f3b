package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan installed packages and rebuild the dependency graph",
	Long: `Scan every enabled package manager and rebuild the dependency graph
from scratch. The stored graph always reflects the latest scan; a scan with
errors still replaces it with whatever the reachable ecosystems reported.

Examples:
  depsweep scan
  depsweep scan --json
  depsweep scan --log-level=debug`,
	Run: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	summary, err := service.ScanAll(newContext())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running scan: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(summary, outputFormat(scanJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)

	// A scan that produced nothing but errors is a failure; partial
	// results still stored exit clean
	if summary.IsFailure() {
		os.Exit(1)
	}
}
