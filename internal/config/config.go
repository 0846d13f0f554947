package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the workspace-relative location of the config file.
const DefaultPath = ".neurolint/config.yaml"

// Config holds all neurolint configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Pipeline defaults for fix runs
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Layer recommendation
	Selector SelectorConfig `yaml:"selector"`

	// Layer 7 learned rules
	Adaptive AdaptiveConfig `yaml:"adaptive"`

	// Run history persistence
	Store StoreConfig `yaml:"store"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Prometheus endpoint (watch mode only)
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PipelineConfig configures the layer pipeline.
type PipelineConfig struct {
	// Layers to run when none are given on the command line. Empty means
	// "ask the selector".
	Layers     []int    `yaml:"layers"`
	DryRun     bool     `yaml:"dry_run"`
	SingleFile bool     `yaml:"single_file"`
	Extensions []string `yaml:"extensions"`
	Exclude    []string `yaml:"exclude"`
	// Files processed concurrently in a batch
	Concurrency int `yaml:"concurrency"`
}

// SelectorConfig configures layer recommendation.
type SelectorConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// AdaptiveRule is a user-taught textual rewrite applied by layer 7.
type AdaptiveRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// AdaptiveConfig configures layer 7.
type AdaptiveConfig struct {
	Rules []AdaptiveRule `yaml:"rules"`
}

// StoreConfig configures the SQLite run history.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "neurolint",
		Version: "1.0.0",

		Pipeline: PipelineConfig{
			Extensions:  []string{".js", ".jsx", ".ts", ".tsx", ".json", ".mjs", ".cjs"},
			Exclude:     []string{"node_modules", ".next", "dist", "build", ".git"},
			Concurrency: 4,
		},

		Selector: SelectorConfig{
			CacheSize: 512,
		},

		Store: StoreConfig{
			Enabled: true,
			Path:    ".neurolint/history.db",
		},

		Watch: WatchConfig{
			Debounce: "500ms",
		},

		Metrics: MetricsConfig{
			Path: "/metrics",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks values that would otherwise fail later at run time.
func (c *Config) Validate() error {
	for _, id := range c.Pipeline.Layers {
		if id < 1 || id > 7 {
			return fmt.Errorf("pipeline.layers: layer %d out of range 1-7", id)
		}
	}
	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("pipeline.concurrency must not be negative")
	}
	for i, r := range c.Adaptive.Rules {
		if r.Pattern == "" {
			return fmt.Errorf("adaptive.rules[%d]: pattern is required", i)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if lvl := os.Getenv("NEUROLINT_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if path := os.Getenv("NEUROLINT_DB"); path != "" {
		c.Store.Path = path
	}
	if v := os.Getenv("NEUROLINT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Concurrency = n
		}
	}
	if addr := os.Getenv("NEUROLINT_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetConcurrency returns the batch concurrency, never less than one.
func (c *Config) GetConcurrency() int {
	if c.Pipeline.Concurrency < 1 {
		return 1
	}
	return c.Pipeline.Concurrency
}
