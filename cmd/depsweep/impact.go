package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var impactJSON bool

var impactCmd = &cobra.Command{
	Use:   "impact <package>",
	Short: "Simulate removing a package",
	Long: `Compute what would break if a package were removed: the packages that
depend on it directly, and everything affected through the dependency
chain.

The package may be named by reference or by full canonical key:
  depsweep impact brew::jq
  depsweep impact npm::@angular/cli
  depsweep impact pip::requests --json`,
	Args: cobra.ExactArgs(1),
	Run:  runImpact,
}

func init() {
	impactCmd.Flags().BoolVar(&impactJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, args []string) {
	logger := newLogger()
	service := mustGetService(logger)

	impact, err := service.SimulateRemoval(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error simulating removal: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(impact, outputFormat(impactJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
