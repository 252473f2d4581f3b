// Package registry enumerates the compiled-in ecosystem adapters. It sits
// below internal/ingest because the adapters themselves import that package
package registry

import (
	"depsweep/internal/config"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/ingest/brew"
	"depsweep/internal/ingest/npm"
	"depsweep/internal/ingest/pip"
	"depsweep/internal/logging"
)

// factory builds one ecosystem adapter from its configuration
type factory func(cfg config.EcosystemConfig, runner ingest.CommandRunner, logger *logging.Logger) ingest.Adapter

// knownEcosystems fixes the build order; adding an ecosystem means adding a
// constant, an adapter package and a row here
var knownEcosystems = []identity.Ecosystem{
	identity.EcosystemBrew,
	identity.EcosystemNpm,
	identity.EcosystemPip,
}

var factories = map[identity.Ecosystem]factory{
	identity.EcosystemBrew: func(cfg config.EcosystemConfig, runner ingest.CommandRunner, logger *logging.Logger) ingest.Adapter {
		return brew.New(cfg, runner, logger)
	},
	identity.EcosystemNpm: func(cfg config.EcosystemConfig, runner ingest.CommandRunner, logger *logging.Logger) ingest.Adapter {
		return npm.New(cfg, runner, logger)
	},
	identity.EcosystemPip: func(cfg config.EcosystemConfig, runner ingest.CommandRunner, logger *logging.Logger) ingest.Adapter {
		return pip.New(cfg, runner, logger)
	},
}

// Ecosystems returns the known ecosystem IDs in build order
func Ecosystems() []identity.Ecosystem {
	out := make([]identity.Ecosystem, len(knownEcosystems))
	copy(out, knownEcosystems)
	return out
}

// NewAdapter builds the adapter for one ecosystem, enabled or not.
// Returns false for an unknown ecosystem ID
func NewAdapter(eco identity.Ecosystem, cfg config.EcosystemConfig, runner ingest.CommandRunner, logger *logging.Logger) (ingest.Adapter, bool) {
	build, ok := factories[eco]
	if !ok {
		return nil, false
	}
	return build(cfg, runner, logger), true
}

// BuildAdapters constructs the adapters for every enabled ecosystem
func BuildAdapters(cfg *config.Config, runner ingest.CommandRunner, logger *logging.Logger) []ingest.Adapter {
	var adapters []ingest.Adapter

	for _, eco := range knownEcosystems {
		ecoCfg := cfg.Ecosystem(eco)
		if !ecoCfg.Enabled {
			logger.Debug("Ecosystem disabled, skipping", logging.Fields{
				"ecosystem": string(eco),
			})
			continue
		}
		adapter, _ := NewAdapter(eco, ecoCfg, runner, logger)
		adapters = append(adapters, adapter)
	}

	return adapters
}
