// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted for the config file
// path when the --config flag is not passed.
const EnvVar = "PERCH_CONFIG"

// Defaults applied by Load and Default for fields left unset.
const (
	// DefaultTickInterval is the redraw tick period for the UI
	// multiplexer.
	DefaultTickInterval = 250 * time.Millisecond

	// DefaultChannelCapacity is the bounded capacity of the canonical
	// event channel between the sync engine and the render loop.
	// Sized generously relative to notification burst rates: a full
	// channel means the render loop has stopped draining.
	DefaultChannelCapacity = 1024

	// DefaultExitKey is the local-quit gesture for the input
	// producer.
	DefaultExitKey = "ctrl+q"
)

// Config is the perch client configuration.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.example.org").
	Homeserver string `yaml:"homeserver"`

	// Username is the login localpart or full user ID. Optional;
	// the --user flag overrides it.
	Username string `yaml:"username"`

	// UI configures the terminal event loop.
	UI UIConfig `yaml:"ui"`

	// Events configures the canonical event pipeline.
	Events EventsConfig `yaml:"events"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// UIConfig configures the terminal event loop.
type UIConfig struct {
	// ExitKey is the keystroke that stops the input reader
	// (e.g., "ctrl+q", "esc", "q"). Parsed by the ui package.
	ExitKey string `yaml:"exit_key"`

	// TickInterval is the redraw tick period (e.g., "250ms").
	TickInterval Duration `yaml:"tick_interval"`
}

// EventsConfig configures the canonical event pipeline.
type EventsConfig struct {
	// ChannelCapacity is the bounded capacity of the event channel
	// between the sync engine and the render loop.
	ChannelCapacity int `yaml:"channel_capacity"`

	// MessageTypes lists the Matrix msgtypes translated into UI
	// events. Other message kinds are dropped. Empty means the
	// default set (m.text only).
	MessageTypes []string `yaml:"message_types"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum slog level: "debug", "info", "warn",
	// "error". Empty means "info".
	Level string `yaml:"level"`

	// Output is a file path for JSON log records. Empty means
	// stderr. A TUI owns the terminal, so file output is the usual
	// choice when debugging.
	Output string `yaml:"output"`
}

// Duration wraps time.Duration with YAML unmarshaling from the
// standard "250ms" / "2s" string syntax.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no config file is
// specified. The homeserver is empty and must come from the command
// line.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Locate resolves the config file path from the flag value and the
// PERCH_CONFIG environment variable, in that order. The boolean is
// false when neither names a file.
func Locate(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, true
	}
	return "", false
}

// Load reads, parses, defaults, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.UI.ExitKey == "" {
		c.UI.ExitKey = DefaultExitKey
	}
	if c.UI.TickInterval == 0 {
		c.UI.TickInterval = Duration(DefaultTickInterval)
	}
	if c.Events.ChannelCapacity == 0 {
		c.Events.ChannelCapacity = DefaultChannelCapacity
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks field ranges. Field presence that depends on the
// command line (homeserver) is checked at wiring time, not here.
func (c *Config) Validate() error {
	if c.Events.ChannelCapacity < 0 {
		return fmt.Errorf("events.channel_capacity must be positive, got %d", c.Events.ChannelCapacity)
	}
	if c.UI.TickInterval < 0 {
		return fmt.Errorf("ui.tick_interval must be positive, got %v", c.UI.TickInterval.Std())
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
