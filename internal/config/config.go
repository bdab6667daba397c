// Package config loads driver configuration from tessera.yaml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tessera-lang/tessera/internal/diagnostics"
)

// DefaultFilename is looked up in the working directory when no
// explicit path is given.
const DefaultFilename = "tessera.yaml"

// Config is the driver configuration.
type Config struct {
	// Workers bounds parallel per-function analysis; zero means one
	// worker per CPU.
	Workers int `yaml:"workers"`

	// ErrorLimit stops recording errors once reached; zero means
	// unlimited.
	ErrorLimit int `yaml:"error_limit"`

	// WarningsAsErrors promotes warnings to errors for exit-status
	// purposes.
	WarningsAsErrors bool `yaml:"warnings_as_errors"`

	// Suppress lists diagnostic code names to drop, e.g. "ShapeMismatch".
	Suppress []string `yaml:"suppress"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{}
}

// Load reads a configuration file. A missing file at the default path
// is not an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads the default file when present, otherwise returns
// defaults.
func LoadOrDefault() (*Config, error) {
	if _, err := os.Stat(DefaultFilename); err != nil {
		return Default(), nil
	}

	return Load(DefaultFilename)
}

// Validate rejects out-of-range values and unknown suppression codes.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}

	if c.ErrorLimit < 0 {
		return fmt.Errorf("error_limit must be >= 0, got %d", c.ErrorLimit)
	}

	for _, name := range c.Suppress {
		if _, ok := diagnostics.ParseCode(name); !ok {
			return fmt.Errorf("unknown diagnostic code %q in suppress list", name)
		}
	}

	return nil
}

// SuppressedCodes resolves the suppression list. Validate must have
// accepted the config first.
func (c *Config) SuppressedCodes() []diagnostics.Code {
	var codes []diagnostics.Code

	for _, name := range c.Suppress {
		if code, ok := diagnostics.ParseCode(name); ok {
			codes = append(codes, code)
		}
	}

	return codes
}
