// Package config loads and validates the bridge's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"artnetmidi/lib/dmx"
)

// Config holds everything the bridge consumes at startup. The core never
// writes this back; it only validates and reads.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	Universe      uint16 `yaml:"universe"`
	StartChannel  int    `yaml:"start_channel"`
	MidiPort      string `yaml:"midi_port"`
	StrobeEnabled bool   `yaml:"strobe_enabled"`
	BlackoutPulse bool   `yaml:"blackout_pulse"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:    ":6454",
		Universe:      0,
		StartChannel:  1,
		StrobeEnabled: true,
		BlackoutPulse: true,
		LogLevel:      "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the bridge must not start with. The
// start-channel check here is the one place the window bound is enforced;
// per-frame extraction relies on it.
func (c Config) Validate() error {
	if err := dmx.ValidateStart(c.StartChannel); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	if c.MidiPort == "" {
		return fmt.Errorf("config: midi_port must name a MIDI output port")
	}
	return nil
}
