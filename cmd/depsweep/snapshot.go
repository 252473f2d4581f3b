package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"depsweep/internal/storage"
)

var snapshotJSON bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the stored dependency graph",
	Long: `Show the dependency graph as of the latest scan: every package plus the
dependency declarations whose targets are installed.

Examples:
  depsweep snapshot
  depsweep snapshot --json`,
	Run: runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(snapshotCmd)
}

// SnapshotResponse contains the stored graph for CLI output
type SnapshotResponse struct {
	NodeCount  int                       `json:"nodeCount"`
	EdgeCount  int                       `json:"edgeCount"`
	Ecosystems map[string]int            `json:"ecosystems"`
	Nodes      []*storage.PackageNode    `json:"nodes"`
	Edges      []*storage.DependencyEdge `json:"edges"`
}

func runSnapshot(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	snapshot, err := service.Snapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading graph: %v\n", err)
		os.Exit(1)
	}

	resp := &SnapshotResponse{
		NodeCount:  len(snapshot.Nodes),
		EdgeCount:  len(snapshot.Edges),
		Ecosystems: make(map[string]int),
		Nodes:      snapshot.Nodes,
		Edges:      snapshot.Edges,
	}
	for _, node := range snapshot.Nodes {
		resp.Ecosystems[string(node.Identity.Ecosystem)]++
	}

	output, err := FormatResponse(resp, outputFormat(snapshotJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
