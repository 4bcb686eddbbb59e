package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HARDWATCH_CHECK_INTERVAL",
		"HARDWATCH_STABILIZATION_DELAY",
		"HARDWATCH_DATA_DIR",
		"HARDWATCH_NOTIFY_EMAIL",
		"HARDWATCH_CPU_THRESHOLD",
		"HARDWATCH_MEMORY_THRESHOLD",
		"HARDWATCH_DISK_THRESHOLD",
		"HARDWATCH_COOLDOWN_HOURS",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Daemon.CheckInterval != "5m" {
		t.Errorf("CheckInterval = %q, want 5m", config.Daemon.CheckInterval)
	}
	if config.Daemon.StabilizationDelay != "30s" {
		t.Errorf("StabilizationDelay = %q, want 30s", config.Daemon.StabilizationDelay)
	}
	if config.Daemon.DataPath != "/" {
		t.Errorf("DataPath = %q, want /", config.Daemon.DataPath)
	}
	if config.Thresholds.CPUCores != 1 || config.Thresholds.MemoryGB != 1 || config.Thresholds.DiskGB != 10 {
		t.Errorf("thresholds = %+v, want cpu=1 mem=1 disk=10", config.Thresholds)
	}
	if config.Notify.CooldownHours != 6 {
		t.Errorf("CooldownHours = %d, want 6", config.Notify.CooldownHours)
	}
	if config.Optimizer.Command != "/usr/local/bin/server-optimizer" {
		t.Errorf("Command = %q", config.Optimizer.Command)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	if config.Daemon.CheckInterval != "5m" {
		t.Errorf("missing file should yield defaults, got %q", config.Daemon.CheckInterval)
	}
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
daemon:
  check_interval: 1m
thresholds:
  disk_gb: 50
notify:
  email: ops@example.com
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.Daemon.CheckInterval != "1m" {
		t.Errorf("CheckInterval = %q, want 1m", config.Daemon.CheckInterval)
	}
	if config.Thresholds.DiskGB != 50 {
		t.Errorf("DiskGB = %d, want 50", config.Thresholds.DiskGB)
	}
	if config.Notify.Email != "ops@example.com" {
		t.Errorf("Email = %q", config.Notify.Email)
	}

	// Untouched fields keep their defaults.
	if config.Daemon.StabilizationDelay != "30s" {
		t.Errorf("StabilizationDelay = %q, want default 30s", config.Daemon.StabilizationDelay)
	}
	if config.Optimizer.Timeout != "10m" {
		t.Errorf("Timeout = %q, want default 10m", config.Optimizer.Timeout)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "daemon: [not a map")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HARDWATCH_CHECK_INTERVAL", "600")
	t.Setenv("HARDWATCH_DISK_THRESHOLD", "25")
	t.Setenv("HARDWATCH_NOTIFY_EMAIL", "admin@example.com")

	path := writeConfig(t, `
daemon:
  check_interval: 1m
thresholds:
  disk_gb: 50
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.Daemon.CheckInterval != "600" {
		t.Errorf("CheckInterval = %q, want env value 600", config.Daemon.CheckInterval)
	}
	if got := config.CheckInterval(); got != 600*time.Second {
		t.Errorf("parsed CheckInterval = %v, want 10m (bare seconds)", got)
	}
	if config.Thresholds.DiskGB != 25 {
		t.Errorf("DiskGB = %d, want env value 25", config.Thresholds.DiskGB)
	}
	if config.Notify.Email != "admin@example.com" {
		t.Errorf("Email = %q", config.Notify.Email)
	}
}

func TestEnvNonIntegerThreshold(t *testing.T) {
	clearEnv(t)
	t.Setenv("HARDWATCH_CPU_THRESHOLD", "two")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for non-integer threshold")
	} else if !strings.Contains(err.Error(), "HARDWATCH_CPU_THRESHOLD") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.Daemon.DataDir = "" },
			wantErr: "data_dir",
		},
		{
			name:    "empty data path",
			mutate:  func(c *Config) { c.Daemon.DataPath = "" },
			wantErr: "data_path",
		},
		{
			name:    "bad check interval",
			mutate:  func(c *Config) { c.Daemon.CheckInterval = "soon" },
			wantErr: "check_interval",
		},
		{
			name:    "negative check interval",
			mutate:  func(c *Config) { c.Daemon.CheckInterval = "-5m" },
			wantErr: "check_interval",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Thresholds.MemoryGB = -1 },
			wantErr: "non-negative",
		},
		{
			name:    "negative cooldown",
			mutate:  func(c *Config) { c.Notify.CooldownHours = -1 },
			wantErr: "cooldown_hours",
		},
		{
			name:    "empty optimizer command",
			mutate:  func(c *Config) { c.Optimizer.Command = "" },
			wantErr: "optimizer.command",
		},
		{
			name:    "bad optimizer timeout",
			mutate:  func(c *Config) { c.Optimizer.Timeout = "whenever" },
			wantErr: "optimizer.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "5m", want: 5 * time.Minute},
		{in: "90s", want: 90 * time.Second},
		{in: "300", want: 300 * time.Second},
		{in: "0", want: 0},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "", wantErr: true},
		{in: "-300", wantErr: true},
		{in: "fast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseInterval(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseInterval(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInterval(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseInterval(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAccessorFallbacks(t *testing.T) {
	config := &Config{}

	if got := config.CheckInterval(); got != 5*time.Minute {
		t.Errorf("CheckInterval fallback = %v, want 5m", got)
	}
	if got := config.StabilizationDelay(); got != 30*time.Second {
		t.Errorf("StabilizationDelay fallback = %v, want 30s", got)
	}
	if got := config.OptimizerTimeout(); got != 10*time.Minute {
		t.Errorf("OptimizerTimeout fallback = %v, want 10m", got)
	}

	config.Notify.CooldownHours = 6
	if got := config.CooldownWindow(); got != 6*time.Hour {
		t.Errorf("CooldownWindow = %v, want 6h", got)
	}
}
