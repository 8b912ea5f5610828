// Loads the optional YAML configuration file.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// config is the content of idb.yaml. Flags set on the command line take
// precedence over it.
type config struct {
	Database      string        `yaml:"database,omitempty"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	History       historyConfig `yaml:"history,omitempty"`
	WatchInterval time.Duration `yaml:"watch_interval,omitempty"`
}

// historyConfig enables git history of the tables.
type historyConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Email   string `yaml:"email,omitempty"`
}

// loadConfig reads the configuration at path. A missing file is an empty
// configuration unless required is set.
func loadConfig(path string, required bool) (*config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return &config{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*config, error) {
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is valid.
func (c *config) Validate() error {
	if c.LogLevel != "" {
		if _, err := parseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.WatchInterval < 0 {
		return fmt.Errorf("watch_interval must not be negative, got %s", c.WatchInterval)
	}
	if !c.History.Enabled && (c.History.Name != "" || c.History.Email != "") {
		return errors.New("history.name and history.email require history.enabled")
	}
	return nil
}
