// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the client configuration for the fitlog CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything the CLI needs to open the local store and reach
// the sync server.
type Config struct {
	ServerURL    string `yaml:"server_url"`
	DatabasePath string `yaml:"database_path"`
	UserID       string `yaml:"user_id"`
	DeviceID     string `yaml:"device_id"`
	JWTSecret    string `yaml:"jwt_secret"`

	Debounce    Duration `yaml:"debounce"`
	IdleAfter   Duration `yaml:"idle_after"`
	TokenExpiry Duration `yaml:"token_expiry"`

	LogFile    string `yaml:"log_file"`
	LogMaxSize int    `yaml:"log_max_size_mb"`
}

// Default returns a configuration with sensible defaults for a local client.
func Default() *Config {
	return &Config{
		ServerURL:    "http://localhost:8080",
		DatabasePath: "fitlog.db",
		Debounce:     Duration(2 * time.Second),
		IdleAfter:    Duration(3 * time.Second),
		TokenExpiry:  Duration(time.Hour),
		LogMaxSize:   10,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("config %s: user_id is required", path)
	}
	return cfg, nil
}
