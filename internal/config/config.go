// Package config loads optional project settings from .ouroscan.yaml.
// Everything has a working default; a missing config file is the normal
// case, not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ouroscan/ouroscan/internal/memory"
)

// FileName is the per-project config file looked up at the project root.
const FileName = ".ouroscan.yaml"

// Config holds project-level settings. Zero values mean "use the default";
// Load fills them in so callers never see an incomplete config.
type Config struct {
	// StorePath is the memory database location, relative paths resolved
	// against the project root
	StorePath string `yaml:"store_path"`

	// BatchSize is how many files are processed per batch
	BatchSize int `yaml:"batch_size"`

	// MaxDepth is the recorded recursive analysis depth
	MaxDepth int `yaml:"max_depth"`

	// Extensions are the file extensions selected for analysis
	Extensions []string `yaml:"extensions"`

	// Exclude lists path components skipped during selection, merged with
	// the built-in exclusions
	Exclude []string `yaml:"exclude"`

	// Model overrides the enhanced-analysis model name
	Model string `yaml:"model"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		StorePath:  memory.DefaultPath,
		BatchSize:  50,
		MaxDepth:   3,
		Extensions: []string{".py"},
	}
}

// Load reads the config at path, layering it over the defaults. A missing
// file yields the defaults with no error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.fillDefaults()
	return cfg, nil
}

// LoadFromDir loads dir/.ouroscan.yaml, falling back to defaults when the
// project has no config file.
func LoadFromDir(dir string) (Config, error) {
	return Load(filepath.Join(dir, FileName))
}

func (c *Config) validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// fillDefaults restores defaults for fields explicitly set empty or zero in
// the file.
func (c *Config) fillDefaults() {
	def := Default()
	if c.StorePath == "" {
		c.StorePath = def.StorePath
	}
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = def.MaxDepth
	}
	if len(c.Extensions) == 0 {
		c.Extensions = def.Extensions
	}
}
