package pipemap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCurrentYear    = 2025
	DefaultMaxZoom        = 19
	DefaultSteelSeverity  = 3
	DefaultViewportWidth  = 1200
	DefaultViewportHeight = 800
)

// LoadConfig loads the configuration from a YAML file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	ApplyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(config *Config) {
	if config.CurrentYear == 0 {
		config.CurrentYear = DefaultCurrentYear
	}
	if config.MaxZoom == 0 {
		config.MaxZoom = DefaultMaxZoom
	}
	if config.SteelSeverity == 0 {
		config.SteelSeverity = DefaultSteelSeverity
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = DefaultViewportWidth
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = DefaultViewportHeight
	}
}

// Validate checks required fields and value ranges.
func Validate(config *Config) error {
	if config.DatasetPath == "" {
		return fmt.Errorf("dataset is required")
	}
	if config.SteelSeverity != 3 && config.SteelSeverity != 4 {
		return fmt.Errorf("steelSeverity must be 3 or 4, got %d", config.SteelSeverity)
	}
	if config.CurrentYear < 1900 {
		return fmt.Errorf("currentYear %d is implausible", config.CurrentYear)
	}
	if config.MaxZoom < 0 || config.MaxZoom > 22 {
		return fmt.Errorf("maxZoom must be in [0, 22], got %d", config.MaxZoom)
	}
	if config.ViewportWidth <= 0 || config.ViewportHeight <= 0 {
		return fmt.Errorf("viewport dimensions must be positive")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
