package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"depsweep/internal/config"
	"depsweep/internal/graph"
	"depsweep/internal/ingest"
	"depsweep/internal/ingest/registry"
	"depsweep/internal/logging"
	"depsweep/internal/storage"
)

var (
	configOnce   sync.Once
	sharedConfig *config.Config

	serviceOnce   sync.Once
	sharedService *graph.Service
	serviceErr    error
)

// loadConfig returns the CLI configuration. Load failures fall back to
// defaults with a warning; a broken config file must not brick the CLI.
func loadConfig() *config.Config {
	configOnce.Do(func() {
		cfg, err := config.LoadDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load config, using defaults: %v\n", err)
			cfg = config.DefaultConfig()
		}
		sharedConfig = cfg
	})
	return sharedConfig
}

// getService returns a shared graph service instance.
// The service is lazily initialized on first use.
func getService(logger *logging.Logger) (*graph.Service, error) {
	serviceOnce.Do(func() {
		cfg := loadConfig()

		dbPath, err := cfg.ResolveDatabasePath()
		if err != nil {
			serviceErr = fmt.Errorf("failed to resolve database path: %w", err)
			return
		}

		db, err := storage.Open(dbPath, logger)
		if err != nil {
			serviceErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		runner := ingest.NewExecRunner(logger)
		adapters := registry.BuildAdapters(cfg, runner, logger)

		service := graph.NewService(storage.NewStore(db), adapters, logger)
		service.Initialize()
		sharedService = service
	})

	return sharedService, serviceErr
}

// mustGetService returns the shared graph service or exits on error.
func mustGetService(logger *logging.Logger) *graph.Service {
	service, err := getService(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing depsweep: %v\n", err)
		os.Exit(1)
	}
	return service
}

// newContext creates a new context for command execution.
func newContext() context.Context {
	return context.Background()
}

// newLogger builds the CLI logger. Flag values win over the config file.
func newLogger() *logging.Logger {
	cfg := loadConfig()

	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	format := cfg.Logging.Format
	if logFormatFlag != "" {
		format = logFormatFlag
	}

	logFormat := logging.HumanFormat
	if format == "json" {
		logFormat = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: logFormat,
		Level:  logging.ParseLevel(level),
	})
}
