package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"gitlab.com/tinyland/lab/hardwatch/baseline"
	"gitlab.com/tinyland/lab/hardwatch/config"
	"gitlab.com/tinyland/lab/hardwatch/hardware"
	"gitlab.com/tinyland/lab/hardwatch/monitor"
	"gitlab.com/tinyland/lab/hardwatch/notify"
	"gitlab.com/tinyland/lab/hardwatch/optimize"
)

// daemon wraps the monitor loop with single-instance enforcement (PID file)
// and a periodic health heartbeat.
type daemon struct {
	config  *config.Config
	logger  *slog.Logger
	monitor *monitor.Monitor
	store   *baseline.Store
	pidFile string
}

// newDaemon wires the monitor from the configuration: gopsutil-backed
// sampler, baseline store, cooldown gate, mail notifier, and subprocess
// optimizer.
func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	store, err := baseline.NewStore(cfg.Daemon.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: create baseline store: %w", err)
	}

	cooldownDir := filepath.Join(cfg.Daemon.DataDir, "cooldowns")
	if err := os.MkdirAll(cooldownDir, 0o755); err != nil {
		return nil, fmt.Errorf("daemon: create cooldown directory: %w", err)
	}

	sampler := hardware.NewSampler(cfg.Daemon.DataPath, logger)
	gate := notify.NewCooldownGate(cooldownDir, cfg.CooldownWindow(), logger)
	notifier := notify.NewMailNotifier(cfg.Notify.Email, logger)
	optimizer := optimize.NewCommandOptimizer(cfg.Optimizer.Command, cfg.OptimizerTimeout(), logger)

	mon := monitor.New(monitor.Config{
		CheckInterval:      cfg.CheckInterval(),
		StabilizationDelay: cfg.StabilizationDelay(),
		Thresholds:         cfg.Thresholds,
	}, sampler, store, gate, notifier, optimizer, logger)

	return &daemon{
		config:  cfg,
		logger:  logger,
		monitor: mon,
		store:   store,
		pidFile: filepath.Join(cfg.Daemon.DataDir, "hardwatch.pid"),
	}, nil
}

// writePIDFile writes the current process PID to the PID file.
func (d *daemon) writePIDFile() error {
	dir := filepath.Dir(d.pidFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create PID file directory: %w", err)
	}
	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid))
	if err := os.WriteFile(d.pidFile, data, 0o644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	d.logger.Info("wrote PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file on shutdown.
func (d *daemon) removePIDFile() {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		d.logger.Error("failed to remove PID file", "path", d.pidFile, "error", err)
		return
	}
	d.logger.Info("removed PID file", "path", d.pidFile)
}

// isRunning checks if another daemon instance is already running by reading
// the PID file and probing the process with signal 0. Stale or corrupt PID
// files are cleaned up.
func (d *daemon) isRunning() (bool, int) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		d.logger.Warn("corrupt PID file, removing", "path", d.pidFile, "content", string(data))
		os.Remove(d.pidFile)
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		// On Unix, FindProcess never returns an error, but handle it anyway.
		os.Remove(d.pidFile)
		return false, 0
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		d.logger.Warn("stale PID file, removing", "path", d.pidFile, "pid", pid)
		os.Remove(d.pidFile)
		return false, 0
	}

	return true, pid
}

// run starts the monitor loop. It aborts immediately if another instance
// holds the PID file, writes its own PID, and refreshes the health file
// after every poll cycle until the context is cancelled.
func (d *daemon) run(ctx context.Context) error {
	if running, pid := d.isRunning(); running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer d.removePIDFile()

	d.monitor.OnCycle = func() {
		if err := writeHealthFile(d.config.Daemon.DataDir); err != nil {
			d.logger.Warn("failed to write health file", "error", err)
		}
	}

	return d.monitor.Run(ctx)
}
