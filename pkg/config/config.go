// Package config provides configuration loading and management for
// demgmrf. It handles loading configuration from YAML files, provides
// default values, and validates the estimation parameters.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Estimation parameters of the GMRF terrain estimator
	Estimation struct {
		// Resolution is the side length of each DEM cell in map units
		Resolution float64 `yaml:"resolution"`

		// PriorStdDev is the standard deviation of the smoothness
		// prior between adjacent cells (the terrain "tolerance")
		PriorStdDev float64 `yaml:"priorStdDev"`

		// ObsStdDev is the default standard deviation assigned to
		// observations when the input file carries no stddev column
		ObsStdDev float64 `yaml:"obsStdDev"`

		// SkipVariance disables posterior variance estimation
		SkipVariance bool `yaml:"skipVariance"`

		// VarianceProbes is the probe count of the stochastic
		// variance estimator; more probes reduce estimator noise at
		// the cost of one extra solve each
		VarianceProbes int `yaml:"varianceProbes"`
	} `yaml:"estimation"`

	// Validation parameters for the checkpoint harness
	Validation struct {
		// CheckpointRatio is the fraction of points withheld from
		// insertion and used to measure prediction residuals
		CheckpointRatio float64 `yaml:"checkpointRatio"`

		// Seed seeds the checkpoint shuffle; 0 means seed from the
		// wall clock, making the split non-reproducible across runs
		Seed int64 `yaml:"seed"`
	} `yaml:"validation"`

	// Output parameters
	Output struct {
		// Prefix is prepended to every output filename
		Prefix string `yaml:"prefix"`

		// Border is how far the bounding box is expanded beyond the
		// data extent before building the grid, in map units
		Border float64 `yaml:"border"`

		// SaveRasters controls writing the mean/std PNG rasters
		SaveRasters bool `yaml:"saveRasters"`

		// SaveMesh controls writing the fitted surface as binary STL
		SaveMesh bool `yaml:"saveMesh"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Estimation.Resolution = 1.0
	cfg.Estimation.PriorStdDev = 1.0
	cfg.Estimation.ObsStdDev = 0.20
	cfg.Estimation.SkipVariance = false
	cfg.Estimation.VarianceProbes = 16

	cfg.Validation.CheckpointRatio = 0.01
	cfg.Validation.Seed = 0

	cfg.Output.Prefix = "demgmrf_out"
	cfg.Output.Border = 10.0
	cfg.Output.SaveRasters = true
	cfg.Output.SaveMesh = false

	return cfg
}

// Validate checks the parameter ranges that must hold before any grid
// work starts. Violations are fatal configuration errors.
func (cfg *Config) Validate() error {
	if cfg.Estimation.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %g", cfg.Estimation.Resolution)
	}
	if cfg.Estimation.PriorStdDev <= 0 {
		return fmt.Errorf("prior stddev must be positive, got %g", cfg.Estimation.PriorStdDev)
	}
	if cfg.Estimation.ObsStdDev <= 0 {
		return fmt.Errorf("observation stddev must be positive, got %g", cfg.Estimation.ObsStdDev)
	}
	if r := cfg.Validation.CheckpointRatio; r < 0 || r > 1 {
		return fmt.Errorf("checkpoint ratio must be in [0,1], got %g", r)
	}
	if cfg.Output.Border < 0 {
		return fmt.Errorf("border must be non-negative, got %g", cfg.Output.Border)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
