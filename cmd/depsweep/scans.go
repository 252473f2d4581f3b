package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depsweep/internal/storage"
)

var (
	scansJSON  bool
	scansLimit int
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Show recent scan history",
	Long: `Show recent scans, newest first. History is capped; old records are
pruned automatically.

Examples:
  depsweep scans
  depsweep scans -n 5
  depsweep scans --json`,
	Run: runScans,
}

func init() {
	scansCmd.Flags().BoolVar(&scansJSON, "json", false, "Output as JSON")
	scansCmd.Flags().IntVarP(&scansLimit, "limit", "n", 10, "Number of scans to show")
	rootCmd.AddCommand(scansCmd)
}

// HistoryResponse contains scan history for CLI output
type HistoryResponse struct {
	Count int                   `json:"count"`
	Scans []*storage.ScanRecord `json:"scans"`
}

func runScans(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	scans, err := service.History(scansLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading scan history: %v\n", err)
		os.Exit(1)
	}

	resp := &HistoryResponse{Count: len(scans), Scans: scans}

	output, err := FormatResponse(resp, outputFormat(scansJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
