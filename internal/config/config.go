package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"depsweep/internal/identity"
	"depsweep/internal/paths"
)

// Config represents the complete depsweep configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// DatabasePath overrides the graph database location; empty means the
	// default under the depsweep home directory
	DatabasePath string `json:"databasePath" mapstructure:"databasePath"`

	Ecosystems map[string]EcosystemConfig `json:"ecosystems" mapstructure:"ecosystems"`
	Logging    LoggingConfig              `json:"logging" mapstructure:"logging"`
}

// EcosystemConfig tunes one ingestion adapter
type EcosystemConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// ToolPath is an explicit package manager binary override
	ToolPath string `json:"toolPath" mapstructure:"toolPath"`

	// TimeoutMs overrides the adapter's subprocess timeout; 0 keeps the
	// adapter default
	TimeoutMs int `json:"timeoutMs" mapstructure:"timeoutMs"`

	// ExtraPaths are directories searched before the well-known locations
	ExtraPaths []string `json:"extraPaths" mapstructure:"extraPaths"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Ecosystems: map[string]EcosystemConfig{
			string(identity.EcosystemBrew): {Enabled: true},
			string(identity.EcosystemNpm):  {Enabled: true},
			string(identity.EcosystemPip):  {Enabled: true},
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <home>/config.json, then applies the
// optional <home>/ecosystems.toml overrides. A missing config file yields
// the defaults.
func LoadConfig(home string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("version", 1)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(home)

	cfg := DefaultConfig()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Fall through with defaults so the TOML overlay still applies
	} else {
		var loaded Config
		if err := v.Unmarshal(&loaded); err != nil {
			return nil, err
		}
		cfg = &loaded
		fillEcosystemDefaults(cfg)
	}

	overrides, err := LoadEcosystemOverrides(filepath.Join(home, paths.EcosystemsFile))
	if err != nil {
		return nil, err
	}
	overrides.Apply(cfg)

	return cfg, nil
}

// LoadDefault loads configuration from the resolved depsweep home
func LoadDefault() (*Config, error) {
	home, err := paths.GetHome()
	if err != nil {
		return nil, err
	}
	return LoadConfig(home)
}

// fillEcosystemDefaults restores entries for known ecosystems that a partial
// config file left out, so omitting an ecosystem never disables it
func fillEcosystemDefaults(cfg *Config) {
	if cfg.Ecosystems == nil {
		cfg.Ecosystems = map[string]EcosystemConfig{}
	}
	for id, def := range DefaultConfig().Ecosystems {
		if _, ok := cfg.Ecosystems[id]; !ok {
			cfg.Ecosystems[id] = def
		}
	}
}

// Ecosystem returns the configuration for one ecosystem, defaulting to an
// enabled adapter with no overrides
func (c *Config) Ecosystem(id identity.Ecosystem) EcosystemConfig {
	if eco, ok := c.Ecosystems[string(id)]; ok {
		return eco
	}
	return EcosystemConfig{Enabled: true}
}

// ResolveDatabasePath returns the configured database path, or the default
// under the depsweep home directory
func (c *Config) ResolveDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	return paths.GetDatabasePath()
}

// Save writes the configuration to <home>/config.json
func (c *Config) Save(home string) error {
	configPath := filepath.Join(home, paths.ConfigFile)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	for id, eco := range c.Ecosystems {
		if eco.TimeoutMs < 0 {
			return &ConfigError{Field: "ecosystems." + id + ".timeoutMs", Message: "must not be negative"}
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
