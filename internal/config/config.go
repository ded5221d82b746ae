package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/drey/pkg/blackboard"
)

// Defaults holds the capacity defaults applied when a service is created
// without explicit limits.
type Defaults struct {
	MaxReaders *uint32 `yaml:"max_readers,omitempty"` // Reader port capacity per service (default: blackboard.DefaultMaxReaders)
	MaxNodes   *uint32 `yaml:"max_nodes,omitempty"`   // Attached process capacity per service (default: blackboard.DefaultMaxNodes)
}

// DreyConfig represents the top-level drey.yml configuration.
type DreyConfig struct {
	Version      string    `yaml:"version"`
	RegistryRoot string    `yaml:"registry_root,omitempty"` // Where service descriptions and segments live
	Defaults     *Defaults `yaml:"defaults,omitempty"`
}

// Validate performs strict validation on the configuration and fills in
// defaults for anything left unset.
func (c *DreyConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Defaults == nil {
		c.Defaults = &Defaults{}
	}
	if c.Defaults.MaxReaders == nil {
		readers := uint32(blackboard.DefaultMaxReaders)
		c.Defaults.MaxReaders = &readers
	}
	if c.Defaults.MaxNodes == nil {
		nodes := uint32(blackboard.DefaultMaxNodes)
		c.Defaults.MaxNodes = &nodes
	}

	if *c.Defaults.MaxReaders < 1 {
		return fmt.Errorf("defaults.max_readers must be >= 1, got %d", *c.Defaults.MaxReaders)
	}
	if *c.Defaults.MaxNodes < 1 {
		return fmt.Errorf("defaults.max_nodes must be >= 1, got %d", *c.Defaults.MaxNodes)
	}

	return nil
}

// Default returns the built-in configuration used when no drey.yml exists.
func Default() *DreyConfig {
	c := &DreyConfig{Version: "1.0"}
	// Validate never fails on the built-in values; it only fills defaults.
	_ = c.Validate()
	return c
}

// Load reads and validates drey.yml from the specified path.
func Load(path string) (*DreyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config DreyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
