package main

import (
	"depsweep/internal/version"

	"github.com/spf13/cobra"
)

var (
	// logLevelFlag and logFormatFlag override the config file's logging
	// section when set
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "depsweep",
	Short: "depsweep - cross-ecosystem package inventory and dependency graph",
	Long: `depsweep inventories the packages installed through Homebrew, npm (global)
and pip, joins them into a single dependency graph, and answers removal
questions: what is orphaned, and what breaks if a package goes away.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("depsweep version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human, json (default from config)")
}
