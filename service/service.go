// Package service manages the hardwatch systemd unit: install, start, stop,
// and status. All operations delegate to systemctl.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// UnitName is the systemd unit filename.
	UnitName = "hardwatch.service"
	// UnitPath is where the unit file is installed.
	UnitPath = "/etc/systemd/system/" + UnitName

	systemctlTimeout = 30 * time.Second
)

// Manager installs and controls the systemd unit.
type Manager struct {
	logger *slog.Logger

	// Overridable for testing.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	writeFile   func(path string, data []byte, perm os.FileMode) error
	executable  func() (string, error)
}

// NewManager creates a service manager. If logger is nil, a no-op logger
// is used.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		logger:      logger,
		execCommand: exec.CommandContext,
		writeFile:   os.WriteFile,
		executable:  os.Executable,
	}
}

// UnitContent renders the systemd unit file for the given binary path.
func UnitContent(execPath string) string {
	return fmt.Sprintf(`[Unit]
Description=hardwatch hardware change detection daemon
After=network.target

[Service]
Type=simple
ExecStart=%s -daemon
Restart=always
RestartSec=30

[Install]
WantedBy=multi-user.target
`, execPath)
}

// Install writes the unit file, reloads systemd, and enables the unit so it
// starts on boot.
func (m *Manager) Install(ctx context.Context) error {
	execPath, err := m.executable()
	if err != nil {
		return fmt.Errorf("service: resolve executable path: %w", err)
	}

	if err := m.writeFile(UnitPath, []byte(UnitContent(execPath)), 0o644); err != nil {
		return fmt.Errorf("service: write unit file %s: %w", UnitPath, err)
	}
	m.logger.Info("wrote systemd unit", "path", UnitPath, "exec", execPath)

	if err := m.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}
	return m.systemctl(ctx, "enable", UnitName)
}

// Start starts the unit.
func (m *Manager) Start(ctx context.Context) error {
	return m.systemctl(ctx, "start", UnitName)
}

// Stop stops the unit.
func (m *Manager) Stop(ctx context.Context) error {
	return m.systemctl(ctx, "stop", UnitName)
}

// Status returns the systemctl status output. A nonzero exit is not an
// error here: systemctl reports inactive units that way, and the output is
// still the answer.
func (m *Manager) Status(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, systemctlTimeout)
	defer cancel()

	cmd := m.execCommand(runCtx, "systemctl", "status", UnitName, "--no-pager")
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), nil
		}
		return "", fmt.Errorf("service: systemctl status: %w", err)
	}
	return string(out), nil
}

// systemctl runs one systemctl subcommand, surfacing stderr in the error.
func (m *Manager) systemctl(ctx context.Context, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, systemctlTimeout)
	defer cancel()

	m.logger.Debug("running systemctl", "args", args)
	cmd := m.execCommand(runCtx, "systemctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("service: systemctl %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
