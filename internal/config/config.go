// Package config provides unified configuration loading for wgfmu-sim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirName is the per-user state directory under the home directory.
const DirName = ".wgfmu-sim"

// DefaultChannel is the first WGFMU channel of a mainframe's first slot.
const DefaultChannel = 101

// SimConfig contains all wgfmu-sim configuration settings.
type SimConfig struct {
	// Instrument describes the simulated unit.
	Instrument InstrumentConfig `json:"instrument" yaml:"instrument"`

	// Archive controls where retrieved captures are recorded.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// InstrumentConfig identifies the instrument a session is opened against.
type InstrumentConfig struct {
	// Address is passed to OpenSession, e.g. "GPIB0::17::INSTR".
	Address string `json:"address" yaml:"address"`

	// DefaultChannel is used by plans and tools that do not name a channel.
	DefaultChannel int `json:"default_channel" yaml:"default_channel"`
}

// ArchiveConfig configures the sqlite capture archive.
type ArchiveConfig struct {
	// Enabled records every completed run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the database file. Supports ${VAR} syntax for env vars.
	// Empty means ~/.wgfmu-sim/captures.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is a host:port to serve /metrics on. Empty disables the endpoint.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Tracing exports driver spans over OTLP/HTTP. The collector is chosen
	// by the standard OTEL_EXPORTER_OTLP_* variables.
	Tracing bool `json:"tracing" yaml:"tracing"`
}

// LoggingConfig configures wgfmu-sim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	// "debug" and "trace" also write the driver event trace to events.jsonl.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Default returns a SimConfig with sensible defaults.
func Default() *SimConfig {
	return &SimConfig{
		Instrument: InstrumentConfig{
			Address:        "GPIB0::17::INSTR",
			DefaultChannel: DefaultChannel,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.wgfmu-sim.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.wgfmu-sim/config.yaml -> environment variables
func Load() (*SimConfig, error) {
	config := Default()

	if dir, err := Dir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Archive.Path = expandEnvVars(config.Archive.Path)

	return config, nil
}

// ArchivePath returns the configured archive path or the default location.
func (c *SimConfig) ArchivePath() (string, error) {
	if c.Archive.Path != "" {
		return c.Archive.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "captures.db"), nil
}

// Validate checks that the configuration is valid.
func (c *SimConfig) Validate() error {
	if c.Instrument.DefaultChannel <= 0 {
		return fmt.Errorf("default_channel must be positive, got %d", c.Instrument.DefaultChannel)
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("invalid metrics addr %q: %w", c.Metrics.Addr, err)
		}
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", f)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SimConfig) {
	if v := os.Getenv("WGFMU_INSTRUMENT"); v != "" {
		config.Instrument.Address = v
	}

	if v := os.Getenv("WGFMU_CHANNEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Instrument.DefaultChannel = n
		}
	}

	if v := os.Getenv("WGFMU_ARCHIVE_ENABLED"); v != "" {
		config.Archive.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("WGFMU_ARCHIVE_PATH"); v != "" {
		config.Archive.Path = v
	}

	if v := os.Getenv("WGFMU_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}

	if v := os.Getenv("WGFMU_TRACING"); v != "" {
		config.Metrics.Tracing = v == "true" || v == "1"
	}

	if v := os.Getenv("WGFMU_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("WGFMU_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
