package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// EcosystemOverrides mirrors the optional ecosystems.toml file. It exists so
// machine-provisioning tools can adjust adapter behavior without touching the
// JSON config.
type EcosystemOverrides struct {
	Ecosystems []EcosystemOverride `toml:"ecosystems"`
}

// EcosystemOverride adjusts one adapter entry
type EcosystemOverride struct {
	// ID is the ecosystem identifier (brew, npm, pip)
	ID string `toml:"id"`

	// Enabled toggles the adapter; nil leaves the JSON value in place
	Enabled *bool `toml:"enabled,omitempty"`

	// ToolPath replaces the package manager binary path when non-empty
	ToolPath string `toml:"tool_path,omitempty"`

	// TimeoutMs replaces the subprocess timeout when positive
	TimeoutMs int `toml:"timeout_ms,omitempty"`

	// ExtraPaths are appended to the locator search directories
	ExtraPaths []string `toml:"extra_paths,omitempty"`
}

// LoadEcosystemOverrides reads the override file. A missing file is not an
// error and yields an empty override set.
func LoadEcosystemOverrides(path string) (*EcosystemOverrides, error) {
	var overrides EcosystemOverrides
	if _, err := toml.DecodeFile(path, &overrides); err != nil {
		if os.IsNotExist(err) {
			return &EcosystemOverrides{}, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &overrides, nil
}

// Apply merges the overrides into a loaded configuration
func (o *EcosystemOverrides) Apply(cfg *Config) {
	if len(o.Ecosystems) == 0 {
		return
	}
	if cfg.Ecosystems == nil {
		cfg.Ecosystems = map[string]EcosystemConfig{}
	}

	for _, override := range o.Ecosystems {
		if override.ID == "" {
			continue
		}
		eco, ok := cfg.Ecosystems[override.ID]
		if !ok {
			eco = EcosystemConfig{Enabled: true}
		}
		if override.Enabled != nil {
			eco.Enabled = *override.Enabled
		}
		if override.ToolPath != "" {
			eco.ToolPath = override.ToolPath
		}
		if override.TimeoutMs > 0 {
			eco.TimeoutMs = override.TimeoutMs
		}
		eco.ExtraPaths = append(eco.ExtraPaths, override.ExtraPaths...)
		cfg.Ecosystems[override.ID] = eco
	}
}
