package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the stored graph",
	Long: `Summarize the stored dependency graph: package and dependency counts,
orphans, reported sizes, and the latest scan.

Examples:
  depsweep stats
  depsweep stats --json`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	stats, err := service.Statistics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing statistics: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(stats, outputFormat(statsJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
