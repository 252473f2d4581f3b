package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depsweep/internal/export"
)

var (
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the dependency graph to a file",
	Long: `Export the stored dependency graph for external tooling. Without
--output the document is written to stdout.

The format is inferred from the output file name unless --format is given:
  depsweep export -o graph.json
  depsweep export -o graph.yaml
  depsweep export -o graph.json.gz
  depsweep export --format yaml`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Export format: json, yaml, json.gz")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	format := export.FormatJSON
	if exportFormat != "" {
		parsed, err := export.ParseFormat(exportFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		format = parsed
	} else if exportOutput != "" {
		format = export.DetectFormat(exportOutput)
	}

	snapshot, err := service.Snapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading graph: %v\n", err)
		os.Exit(1)
	}

	exporter := export.NewExporter(logger)
	doc := exporter.BuildDocument(snapshot)

	if exportOutput == "" {
		if err := exporter.Write(os.Stdout, doc, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := exporter.WriteFile(exportOutput, doc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing export: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d packages and %d dependencies to %s\n",
		doc.NodeCount, doc.EdgeCount, exportOutput)
}
