// Package config loads the server configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a yaml string like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the server configuration. See Default for the values an absent
// or partial file falls back to.
type Config struct {
	// DataDir is where stores keep their files.
	DataDir string `yaml:"data_dir"`
	// Store selects the persistence backend: "json", "bolt", or "memory".
	Store string `yaml:"store"`
	// CacheSize bounds each entity type's key cache.
	CacheSize int `yaml:"cache_size"`
	// SaveInterval is the period of the dirty-entity save sweep.
	SaveInterval Duration `yaml:"save_interval"`
	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9130".
	MetricsAddr string `yaml:"metrics_addr"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		DataDir:      "data",
		Store:        "json",
		CacheSize:    512,
		SaveInterval: Duration(30 * time.Second),
		LogLevel:     "info",
	}
}

// Load reads the configuration at path, layering it over the defaults. A
// missing file is not an error; unknown fields are.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case "json", "bolt", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("save_interval must be positive, got %s", time.Duration(c.SaveInterval))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level converts LogLevel to a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
}
