// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Boxline components.
//
// Configuration is loaded from a single YAML file specified by:
//   - BOXLINE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable naming the config file.
const EnvVar = "BOXLINE_CONFIG"

// Config is the master configuration for the Boxline service.
type Config struct {
	// Transport configures the chat transport client.
	Transport TransportConfig `yaml:"transport"`

	// Ledger configures the durable box ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Admins lists the user identities with the admin role. Admin
	// membership is static configuration; workers and collectors are
	// dynamic lists stored in the ledger.
	Admins []string `yaml:"admins"`
}

// TransportConfig configures the chat transport client.
type TransportConfig struct {
	// BaseURL is the base URL of the bot API endpoint.
	BaseURL string `yaml:"base_url"`

	// Token authenticates the service to the transport.
	Token string `yaml:"token"`

	// PollTimeout is the long-poll hold time for update fetches.
	// Defaults to 30s.
	PollTimeout Duration `yaml:"poll_timeout"`
}

// LedgerConfig configures the durable box ledger.
type LedgerConfig struct {
	// Path is the filesystem path to the ledger database file.
	Path string `yaml:"path"`

	// Timeout bounds each ledger operation. On expiry the operation
	// surfaces as ledger-unavailable to the caller. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ResolvePath determines the config file path from the --config flag
// value and the BOXLINE_CONFIG environment variable. The flag wins.
func ResolvePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("config: no config file specified (set %s or pass --config)", EnvVar)
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport.PollTimeout == 0 {
		c.Transport.PollTimeout = Duration(30 * time.Second)
	}
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = Duration(10 * time.Second)
	}
}

func (c *Config) validate() error {
	if c.Transport.BaseURL == "" {
		return fmt.Errorf("transport.base_url is required")
	}
	if c.Transport.Token == "" {
		return fmt.Errorf("transport.token is required")
	}
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("at least one admin identity is required")
	}
	for i, admin := range c.Admins {
		if admin == "" {
			return fmt.Errorf("admins[%d] is empty", i)
		}
	}
	return nil
}
