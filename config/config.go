// Package config loads engine configuration from YAML files and
// optionally watches them for changes.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/syssam/quarry/dialect"
)

// Duration decodes either a Go duration string ("150ms") or a number
// of seconds from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		td, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(td)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the settings of an engine deployment.
type Config struct {
	// Driver is the dialect tag of the backend.
	Driver string `yaml:"driver"`
	// DSN is the backend connection string.
	DSN string `yaml:"dsn"`
	// CacheTTL is the default TTL for cached results. Zero disables
	// result caching.
	CacheTTL Duration `yaml:"cache_ttl"`
	// SlowQueryThreshold marks statements as slow for the stats driver.
	SlowQueryThreshold Duration `yaml:"slow_query_threshold"`
	// QueryLogPath, when set, enables the file-based query logger.
	QueryLogPath string `yaml:"query_log_path"`
	// Redis is the address of a shared cache backend, when one is used.
	Redis string `yaml:"redis"`
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := dialect.Validate(c.Driver); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("config: dsn must not be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: cache_ttl must not be negative")
	}
	if c.SlowQueryThreshold < 0 {
		return fmt.Errorf("config: slow_query_threshold must not be negative")
	}
	return nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Watch reloads the configuration whenever the file at path changes
// and passes each valid new configuration to fn. Invalid intermediate
// states are skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if evAbs, err := filepath.Abs(ev.Name); err != nil || evAbs != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			c, err := Load(path)
			if err != nil {
				continue
			}
			fn(c)
		case _, ok := <-w.Errors:
			if !ok {
				return nil
			}
		}
	}
}
