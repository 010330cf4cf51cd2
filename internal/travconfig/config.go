// Package travconfig loads and holds CLI-wide defaults: which engine tag
// the commands assume, where the diagnostic trace store lives, batch
// concurrency, watch debounce, and how obslog is configured. The
// strategy set is not configurable here; the commands always use the
// built-in catalog.
package travconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls internal/obslog.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Directory  string `yaml:"directory"`
}

// Config holds all travopt configuration.
type Config struct {
	// EngineTag is the default engine tag ("STANDARD" or "COMPUTER")
	// the commands use when no --engine flag is given; a tag recorded in
	// the pipeline file is not consulted.
	EngineTag string `yaml:"engine_tag"`

	// TracePath is the diagnostic trace store's SQLite file.
	TracePath string `yaml:"trace_path"`

	// BatchConcurrency bounds how many pipelines the batch command
	// optimizes concurrently.
	BatchConcurrency int `yaml:"batch_concurrency"`

	// WatchDebounce is how long the watch command waits after a file
	// change before re-applying, to coalesce rapid edits.
	WatchDebounce string `yaml:"watch_debounce"`

	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration used when no config file
// is present.
func Default() *Config {
	return &Config{
		EngineTag:        "STANDARD",
		TracePath:        ".travopt/trace.db",
		BatchConcurrency: 4,
		WatchDebounce:    "300ms",
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Directory: "",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults
// for any field the file omits, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("travconfig: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("travconfig: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("travconfig: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("travconfig: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if tag := os.Getenv("TRAVOPT_ENGINE_TAG"); tag != "" {
		c.EngineTag = tag
	}
	if p := os.Getenv("TRAVOPT_TRACE_PATH"); p != "" {
		c.TracePath = p
	}
	if lvl := os.Getenv("TRAVOPT_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// WatchDebounceDuration parses WatchDebounce, defaulting to 300ms on a
// malformed value.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.WatchDebounce)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}
