// Package config holds the engine configuration and its YAML loader.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config tunes the engine.
type Config struct {
	// SyncFlush commits every statement's effects before the statement returns.
	// Deterministic and immediately observable, at the cost of throughput; meant
	// for reproducible test execution.
	SyncFlush bool `yaml:"syncFlush"`
	// WALDir is the change log directory. Empty disables durability: no change log
	// is written and crash recovery is unavailable.
	WALDir string `yaml:"walDir"`
	// CommitRetries bounds internal retries on snapshot index contention before a
	// commit surfaces a fatal statement error.
	CommitRetries int `yaml:"commitRetries"`
	// PropagationWorkers sizes the worker pool fanning epoch commits out to views.
	PropagationWorkers int `yaml:"propagationWorkers"`
}

// Default returns the production defaults: async flush, durability off until a WAL
// directory is configured.
func Default() Config {
	return Config{
		CommitRetries:      8,
		PropagationWorkers: 4,
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	def := Default()
	if c.CommitRetries <= 0 {
		c.CommitRetries = def.CommitRetries
	}
	if c.PropagationWorkers <= 0 {
		c.PropagationWorkers = def.PropagationWorkers
	}
	return c
}
