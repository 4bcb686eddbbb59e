// Package config provides configuration parsing for hardwatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/hardwatch/hardware"
)

// Config represents the hardwatch daemon configuration. Values load from
// the YAML file merged over defaults, with environment variables applied
// last (see ApplyEnv).
type Config struct {
	// Daemon holds loop timing and data directory settings.
	Daemon DaemonConfig `yaml:"daemon"`

	// Thresholds are the per-dimension minimum deltas that count as a
	// hardware change.
	Thresholds hardware.Thresholds `yaml:"thresholds"`

	// Notify holds notification delivery settings.
	Notify NotifyConfig `yaml:"notify"`

	// Optimizer holds the external optimization action settings.
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// DaemonConfig holds loop timing and data directory settings.
type DaemonConfig struct {
	// CheckInterval is a duration string (e.g. "5m") between poll cycles.
	// A bare integer is read as seconds for compatibility with the shell
	// era of this tool.
	CheckInterval string `yaml:"check_interval"`
	// StabilizationDelay is the pause between detecting a change and
	// acting on it.
	StabilizationDelay string `yaml:"stabilization_delay"`
	// DataDir holds the baseline, cooldown files, PID file, and health file.
	DataDir string `yaml:"data_dir"`
	// DataPath is the mount point whose free space is sampled.
	DataPath string `yaml:"data_path"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	// Email is the notification recipient.
	Email string `yaml:"email"`
	// CooldownHours is the minimum gap between two notifications of the
	// same type.
	CooldownHours int `yaml:"cooldown_hours"`
}

// OptimizerConfig holds the external optimization action settings.
type OptimizerConfig struct {
	// Command is the executable invoked with --optimize.
	Command string `yaml:"command"`
	// Timeout is a duration string bounding one optimization run.
	Timeout string `yaml:"timeout"`
}

// DefaultConfig returns a Config populated with sensible defaults. The data
// directory is system-wide when running as root, per-user otherwise.
func DefaultConfig() *Config {
	dataDir := "/var/lib/hardwatch"
	if os.Geteuid() != 0 {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "state", "hardwatch")
	}

	return &Config{
		Daemon: DaemonConfig{
			CheckInterval:      "5m",
			StabilizationDelay: "30s",
			DataDir:            dataDir,
			DataPath:           "/",
		},
		Thresholds: hardware.Thresholds{
			CPUCores: 1,
			MemoryGB: 1,
			DiskGB:   10,
		},
		Notify: NotifyConfig{
			Email:         "root",
			CooldownHours: 6,
		},
		Optimizer: OptimizerConfig{
			Command: "/usr/local/bin/server-optimizer",
			Timeout: "10m",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "hardwatch", "config.yaml")
}

// LoadConfig loads configuration from a YAML file, merging with defaults
// and applying environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config fields from HARDWATCH_* environment variables.
// All are optional; set variables must parse.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("HARDWATCH_CHECK_INTERVAL"); v != "" {
		c.Daemon.CheckInterval = v
	}
	if v := os.Getenv("HARDWATCH_STABILIZATION_DELAY"); v != "" {
		c.Daemon.StabilizationDelay = v
	}
	if v := os.Getenv("HARDWATCH_DATA_DIR"); v != "" {
		c.Daemon.DataDir = v
	}
	if v := os.Getenv("HARDWATCH_NOTIFY_EMAIL"); v != "" {
		c.Notify.Email = v
	}

	intVars := []struct {
		name string
		dst  *int
	}{
		{"HARDWATCH_CPU_THRESHOLD", &c.Thresholds.CPUCores},
		{"HARDWATCH_MEMORY_THRESHOLD", &c.Thresholds.MemoryGB},
		{"HARDWATCH_DISK_THRESHOLD", &c.Thresholds.DiskGB},
		{"HARDWATCH_COOLDOWN_HOURS", &c.Notify.CooldownHours},
	}
	for _, ev := range intVars {
		v := os.Getenv(ev.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer, got %q", ev.name, v)
		}
		*ev.dst = n
	}

	return nil
}

// Validate checks the configuration for required fields and logical
// consistency.
func (c *Config) Validate() error {
	if c.Daemon.DataDir == "" {
		return fmt.Errorf("daemon.data_dir is required")
	}
	if c.Daemon.DataPath == "" {
		return fmt.Errorf("daemon.data_path is required")
	}
	if _, err := parseInterval(c.Daemon.CheckInterval); err != nil {
		return fmt.Errorf("daemon.check_interval: %w", err)
	}
	if _, err := parseInterval(c.Daemon.StabilizationDelay); err != nil {
		return fmt.Errorf("daemon.stabilization_delay: %w", err)
	}
	if c.Thresholds.CPUCores < 0 || c.Thresholds.MemoryGB < 0 || c.Thresholds.DiskGB < 0 {
		return fmt.Errorf("thresholds must be non-negative")
	}
	if c.Notify.CooldownHours < 0 {
		return fmt.Errorf("notify.cooldown_hours must be non-negative, got %d", c.Notify.CooldownHours)
	}
	if c.Optimizer.Command == "" {
		return fmt.Errorf("optimizer.command is required")
	}
	if _, err := parseInterval(c.Optimizer.Timeout); err != nil {
		return fmt.Errorf("optimizer.timeout: %w", err)
	}
	return nil
}

// CheckInterval returns the parsed poll interval.
func (c *Config) CheckInterval() time.Duration {
	return mustInterval(c.Daemon.CheckInterval, 5*time.Minute)
}

// StabilizationDelay returns the parsed stabilization delay.
func (c *Config) StabilizationDelay() time.Duration {
	return mustInterval(c.Daemon.StabilizationDelay, 30*time.Second)
}

// OptimizerTimeout returns the parsed optimizer timeout.
func (c *Config) OptimizerTimeout() time.Duration {
	return mustInterval(c.Optimizer.Timeout, 10*time.Minute)
}

// CooldownWindow returns the notification cooldown as a duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.Notify.CooldownHours) * time.Hour
}

// parseInterval parses a duration string, also accepting a bare integer as
// seconds (the format the shell-era environment variables used).
func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// mustInterval parses s, falling back to def when invalid. Validate reports
// bad values up front; this keeps the accessors total.
func mustInterval(s string, def time.Duration) time.Duration {
	d, err := parseInterval(s)
	if err != nil {
		return def
	}
	return d
}
