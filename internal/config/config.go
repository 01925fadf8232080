// Package config loads and saves the simulator configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds harness settings. The bus core itself has no runtime
// configuration: payload and node capacities are compile-time constants.
type Config struct {
	// BusName is the interface label printed in trace lines.
	BusName string `yaml:"busName"`
	// ScenarioDir is where relative scenario paths are resolved.
	ScenarioDir string `yaml:"scenarioDir"`
	// Listen is the monitor's HTTP listen address.
	Listen string `yaml:"listen"`
	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		BusName:     "vcan0",
		ScenarioDir: ".",
		Listen:      "127.0.0.1:18790",
	}
}

// ConfigPath returns the default configuration file path: ~/.cansim/config.yaml.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cansim/config.yaml"
	}
	return filepath.Join(home, ".cansim", "config.yaml")
}

// DataDir returns the cansim data directory: ~/.cansim.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cansim"
	}
	return filepath.Join(home, ".cansim")
}

// Load reads and parses the config file at path.
// If path is empty, ConfigPath() is used.
// A missing file yields the defaults; a parse failure prints a warning and
// also falls back to the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Printf("Warning: failed to parse config %s: %v\n", path, err)
		fmt.Println("Using default configuration.")
		cfg2 := DefaultConfig()
		return &cfg2, nil
	}

	return &cfg, nil
}

// Save writes cfg to path as YAML.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
