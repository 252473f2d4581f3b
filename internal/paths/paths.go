package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// HomeEnvVar overrides the depsweep home directory
	HomeEnvVar = "DEPSWEEP_HOME"
	// DefaultHomeName is the directory created under the user config dir
	DefaultHomeName = "depsweep"
	// DatabaseFile is the SQLite graph database filename
	DatabaseFile = "depsweep.db"
	// ConfigFile is the primary JSON config filename
	ConfigFile = "config.json"
	// EcosystemsFile is the optional TOML ecosystem override filename
	EcosystemsFile = "ecosystems.toml"
)

// GetHome returns the depsweep home directory.
// DEPSWEEP_HOME takes precedence; otherwise <user config dir>/depsweep.
func GetHome() (string, error) {
	if custom := os.Getenv(HomeEnvVar); custom != "" {
		return custom, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, DefaultHomeName), nil
}

// EnsureHome creates the home directory if needed and returns its path
func EnsureHome() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("failed to create depsweep home: %w", err)
	}
	return home, nil
}

// GetDatabasePath returns the path to the graph database
func GetDatabasePath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DatabaseFile), nil
}

// GetConfigPath returns the path to the JSON config file
func GetConfigPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFile), nil
}

// GetEcosystemsPath returns the path to the optional ecosystem override file
func GetEcosystemsPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, EcosystemsFile), nil
}
