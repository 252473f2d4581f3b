package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var orphansJSON bool

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List packages nothing depends on",
	Long: `List installed packages that were not explicitly requested and that no
other installed package depends on. These are the usual removal candidates
after uninstalling something that pulled them in.

Examples:
  depsweep orphans
  depsweep orphans --json`,
	Run: runOrphans,
}

func init() {
	orphansCmd.Flags().BoolVar(&orphansJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(orphansCmd)
}

// OrphansResponse contains orphan detection results for CLI output
type OrphansResponse struct {
	Count          int         `json:"count"`
	TotalSizeBytes int64       `json:"totalSizeBytes"`
	Orphans        []OrphanRow `json:"orphans"`
}

// OrphanRow represents a single orphaned package
type OrphanRow struct {
	Package     string `json:"package"`
	Version     string `json:"version"`
	SizeBytes   *int64 `json:"sizeBytes,omitempty"`
	InstallPath string `json:"installPath,omitempty"`
}

func runOrphans(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	orphans, err := service.Orphans()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing orphans: %v\n", err)
		os.Exit(1)
	}

	resp := &OrphansResponse{
		Count:   len(orphans),
		Orphans: make([]OrphanRow, 0, len(orphans)),
	}
	for _, node := range orphans {
		row := OrphanRow{
			Package:     node.Identity.Ref().Key(),
			Version:     node.Identity.Version.Normalized(),
			SizeBytes:   node.SizeBytes,
			InstallPath: node.InstallPath,
		}
		if node.SizeBytes != nil {
			resp.TotalSizeBytes += *node.SizeBytes
		}
		resp.Orphans = append(resp.Orphans, row)
	}

	output, err := FormatResponse(resp, outputFormat(orphansJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
