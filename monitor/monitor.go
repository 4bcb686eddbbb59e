// Package monitor implements the hardware-change detection control loop:
// sample current capacity, diff it against the persisted baseline, and when
// the delta crosses the configured thresholds, drive the downstream
// optimization action under a cooldown-gated notification policy.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gitlab.com/tinyland/lab/hardwatch/hardware"
	"gitlab.com/tinyland/lab/hardwatch/notify"
	"gitlab.com/tinyland/lab/hardwatch/optimize"
)

// Sampler captures the current hardware capacity.
type Sampler interface {
	Sample() hardware.Snapshot
}

// BaselineStore persists the comparison baseline between cycles.
type BaselineStore interface {
	Load() (hardware.Snapshot, bool, error)
	Save(hardware.Snapshot) error
	SaveLastChange(hardware.ChangeReport) error
}

// CooldownGate rate-limits notifications per type.
type CooldownGate interface {
	Allowed(typ string) bool
	Record(typ string) error
}

// Config holds the loop timings and change thresholds.
type Config struct {
	// CheckInterval is the pause between poll cycles.
	CheckInterval time.Duration
	// StabilizationDelay is the pause between detecting a change and acting
	// on it, to avoid reacting to transient blips.
	StabilizationDelay time.Duration
	// Thresholds are the per-dimension minimum deltas.
	Thresholds hardware.Thresholds
}

// Monitor owns the polling loop. It is single-threaded: the only suspension
// points are the poll-interval sleep, the stabilization sleep, and blocking
// collaborator calls. It is not designed to run two instances against the
// same baseline; the caller enforces single-instance execution.
type Monitor struct {
	cfg       Config
	sampler   Sampler
	baseline  BaselineStore
	gate      CooldownGate
	notifier  notify.Notifier
	optimizer optimize.Optimizer
	logger    *slog.Logger

	// OnCycle, if set, is invoked after every completed poll cycle. The
	// daemon uses it to refresh the health heartbeat.
	OnCycle func()

	// sleep is overridable so tests can simulate many cycles without
	// wall-clock delay. It must return early when ctx is cancelled.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Monitor. If logger is nil, a no-op logger is used.
func New(cfg Config, sampler Sampler, baseline BaselineStore, gate CooldownGate,
	notifier notify.Notifier, optimizer optimize.Optimizer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		cfg:       cfg,
		sampler:   sampler,
		baseline:  baseline,
		gate:      gate,
		notifier:  notifier,
		optimizer: optimizer,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Run executes the polling loop until ctx is cancelled. The first cycle
// initializes the baseline from a fresh sample if none exists, so no false
// positive fires on first boot. A failed optimization attempt never exits
// the loop; the unchanged baseline re-detects the same change next cycle.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.ensureBaseline(); err != nil {
		return err
	}

	m.logger.Info("monitor started",
		"check_interval", m.cfg.CheckInterval,
		"thresholds", fmt.Sprintf("cpu=%d mem=%dGB disk=%dGB",
			m.cfg.Thresholds.CPUCores, m.cfg.Thresholds.MemoryGB, m.cfg.Thresholds.DiskGB),
	)

	for {
		if err := m.RunCycle(ctx); err != nil {
			m.logger.Error("poll cycle failed", "error", err)
		}
		if m.OnCycle != nil {
			m.OnCycle()
		}

		m.sleep(ctx, m.cfg.CheckInterval)
		if ctx.Err() != nil {
			m.logger.Info("monitor stopping")
			return ctx.Err()
		}
	}
}

// RunCycle performs one detection pass: sample, load baseline, detect, and
// trigger the optimization pipeline when a change is found.
func (m *Monitor) RunCycle(ctx context.Context) error {
	report, err := m.CheckOnce()
	if err != nil {
		return err
	}
	if !report.Changed {
		m.logger.Debug("no hardware change",
			"cpu_cores", report.Curr.CPUCores,
			"memory_gb", report.Curr.MemoryGB,
			"disk_gb", report.Curr.DiskGB,
		)
		return nil
	}

	m.logger.Info("hardware change detected", "summary", report.Summary)
	if err := m.baseline.SaveLastChange(report); err != nil {
		m.logger.Warn("could not record change report", "error", err)
	}

	return m.TriggerOptimization(ctx, report)
}

// CheckOnce runs a single detection pass without acting on the result.
// On first run (no baseline) the current sample becomes the baseline and
// the report comes back unchanged.
func (m *Monitor) CheckOnce() (hardware.ChangeReport, error) {
	curr := m.sampler.Sample()

	prev, ok, err := m.baseline.Load()
	if err != nil {
		return hardware.ChangeReport{}, err
	}
	if !ok {
		if err := m.baseline.Save(curr); err != nil {
			return hardware.ChangeReport{}, fmt.Errorf("initialize baseline: %w", err)
		}
		m.logger.Info("baseline initialized from first sample",
			"cpu_cores", curr.CPUCores, "memory_gb", curr.MemoryGB, "disk_gb", curr.DiskGB)
		return hardware.ChangeReport{Prev: curr, Curr: curr}, nil
	}

	return hardware.Detect(curr, prev, m.cfg.Thresholds), nil
}

// TriggerOptimization drives the change pipeline: notify (cooldown-gated,
// non-blocking on failure), wait for the machine to stabilize, run the
// optimizer, and on success notify again and commit the current snapshot as
// the new baseline. On failure the baseline is left untouched so the next
// cycle re-detects the same change and retries.
func (m *Monitor) TriggerOptimization(ctx context.Context, report hardware.ChangeReport) error {
	m.sendNotification(ctx, notify.TypeHardwareChange, report.Summary)

	if m.cfg.StabilizationDelay > 0 {
		m.logger.Info("waiting for hardware to stabilize", "delay", m.cfg.StabilizationDelay)
		m.sleep(ctx, m.cfg.StabilizationDelay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := m.optimizer.Run(ctx); err != nil {
		m.logger.Error("optimization failed, baseline unchanged", "error", err)
		return err
	}

	m.sendNotification(ctx, notify.TypeOptimizationCompleted,
		"Server optimization completed after hardware change:\n\n"+report.Summary)

	if err := m.baseline.Save(report.Curr); err != nil {
		return fmt.Errorf("persist new baseline: %w", err)
	}
	return nil
}

// ForceOptimize runs the optimization pipeline against the current sample,
// bypassing change detection.
func (m *Monitor) ForceOptimize(ctx context.Context) error {
	if err := m.ensureBaseline(); err != nil {
		return err
	}

	curr := m.sampler.Sample()
	prev, _, err := m.baseline.Load()
	if err != nil {
		return err
	}

	report := hardware.ChangeReport{
		Changed: true,
		Summary: "manual optimization requested",
		Prev:    prev,
		Curr:    curr,
	}
	return m.TriggerOptimization(ctx, report)
}

// ensureBaseline creates the baseline from a fresh sample if none exists.
func (m *Monitor) ensureBaseline() error {
	_, ok, err := m.baseline.Load()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	curr := m.sampler.Sample()
	if err := m.baseline.Save(curr); err != nil {
		return fmt.Errorf("initialize baseline: %w", err)
	}
	m.logger.Info("baseline initialized from first sample",
		"cpu_cores", curr.CPUCores, "memory_gb", curr.MemoryGB, "disk_gb", curr.DiskGB)
	return nil
}

// sendNotification consults the cooldown gate, attempts delivery, and
// records the send on success. Delivery failure is logged and never blocks
// the pipeline.
func (m *Monitor) sendNotification(ctx context.Context, typ, body string) {
	if !m.gate.Allowed(typ) {
		m.logger.Debug("notification suppressed by cooldown", "type", typ)
		return
	}

	if err := m.notifier.Notify(ctx, typ, body); err != nil {
		m.logger.Warn("notification delivery failed", "type", typ, "error", err)
		return
	}

	if err := m.gate.Record(typ); err != nil {
		m.logger.Warn("could not record notification cooldown", "type", typ, "error", err)
	}
}

// sleepContext pauses for d or until ctx is cancelled, whichever is first.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
