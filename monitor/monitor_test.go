package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/hardwatch/hardware"
)

// --- fakes -----------------------------------------------------------------

type fakeSampler struct {
	snap hardware.Snapshot
}

func (f *fakeSampler) Sample() hardware.Snapshot { return f.snap }

type fakeStore struct {
	snap    hardware.Snapshot
	ok      bool
	saves   []hardware.Snapshot
	saveErr error
	reports []hardware.ChangeReport
}

func (f *fakeStore) Load() (hardware.Snapshot, bool, error) { return f.snap, f.ok, nil }

func (f *fakeStore) Save(s hardware.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, s)
	f.snap = s
	f.ok = true
	return nil
}

func (f *fakeStore) SaveLastChange(r hardware.ChangeReport) error {
	f.reports = append(f.reports, r)
	return nil
}

type fakeGate struct {
	blocked map[string]bool
	records []string
}

func (f *fakeGate) Allowed(typ string) bool { return !f.blocked[typ] }

func (f *fakeGate) Record(typ string) error {
	f.records = append(f.records, typ)
	return nil
}

type notifyCall struct {
	typ  string
	body string
}

type fakeNotifier struct {
	calls []notifyCall
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, typ, body string) error {
	f.calls = append(f.calls, notifyCall{typ, body})
	return f.err
}

type fakeOptimizer struct {
	calls int
	err   error
}

func (f *fakeOptimizer) Run(context.Context) error {
	f.calls++
	return f.err
}

// --- fixture ---------------------------------------------------------------

type fixture struct {
	monitor   *Monitor
	sampler   *fakeSampler
	store     *fakeStore
	gate      *fakeGate
	notifier  *fakeNotifier
	optimizer *fakeOptimizer
	slept     []time.Duration
}

func snap(cpu, memGB, diskGB int) hardware.Snapshot {
	return hardware.Snapshot{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CPUCores:  cpu,
		MemoryGB:  memGB,
		DiskGB:    diskGB,
		Hostname:  "host-a",
		Uptime:    "3d 4h",
	}
}

// newFixture wires a monitor over fakes with the stock upgrade scenario:
// baseline 2 cores / 4 GB / 100 GB, current sample 4 / 8 / 200.
func newFixture() *fixture {
	f := &fixture{
		sampler:   &fakeSampler{snap: snap(4, 8, 200)},
		store:     &fakeStore{snap: snap(2, 4, 100), ok: true},
		gate:      &fakeGate{blocked: map[string]bool{}},
		notifier:  &fakeNotifier{},
		optimizer: &fakeOptimizer{},
	}

	f.monitor = New(Config{
		CheckInterval:      5 * time.Minute,
		StabilizationDelay: 30 * time.Second,
		Thresholds:         hardware.Thresholds{CPUCores: 1, MemoryGB: 1, DiskGB: 5},
	}, f.sampler, f.store, f.gate, f.notifier, f.optimizer, nil)

	f.monitor.sleep = func(_ context.Context, d time.Duration) {
		f.slept = append(f.slept, d)
	}
	return f
}

// --- tests -----------------------------------------------------------------

// TestFirstRunInitializesBaseline verifies no false positive fires when the
// baseline file is absent: the first sample becomes the baseline.
func TestFirstRunInitializesBaseline(t *testing.T) {
	f := newFixture()
	f.store.ok = false
	f.store.snap = hardware.Snapshot{}

	if err := f.monitor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(f.store.saves) != 1 {
		t.Fatalf("saves = %d, want 1 (baseline initialization)", len(f.store.saves))
	}
	if f.store.saves[0] != f.sampler.snap {
		t.Errorf("baseline = %+v, want first sample %+v", f.store.saves[0], f.sampler.snap)
	}
	if f.optimizer.calls != 0 {
		t.Error("optimizer must not run on first boot")
	}
	if len(f.notifier.calls) != 0 {
		t.Errorf("no notification expected on first boot, got %v", f.notifier.calls)
	}
}

func TestRunCycleNoChange(t *testing.T) {
	f := newFixture()
	f.sampler.snap = f.store.snap

	if err := f.monitor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if f.optimizer.calls != 0 || len(f.notifier.calls) != 0 || len(f.store.saves) != 0 {
		t.Error("nothing should happen when the sample matches the baseline")
	}
}

// TestRunCyclePipelineSuccess is the full change scenario: all three
// dimensions move, both notifications go out in order, the optimizer runs
// once, and the new baseline equals the current sample.
func TestRunCyclePipelineSuccess(t *testing.T) {
	f := newFixture()

	if err := f.monitor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(f.notifier.calls) != 2 {
		t.Fatalf("notifications = %v, want 2", f.notifier.calls)
	}
	if f.notifier.calls[0].typ != "hardware_change" {
		t.Errorf("first notification = %q, want hardware_change", f.notifier.calls[0].typ)
	}
	for _, want := range []string{"CPU", "Memory", "Disk"} {
		if !strings.Contains(f.notifier.calls[0].body, want) {
			t.Errorf("change notification %q does not mention %s", f.notifier.calls[0].body, want)
		}
	}
	if f.notifier.calls[1].typ != "optimization_completed" {
		t.Errorf("second notification = %q, want optimization_completed", f.notifier.calls[1].typ)
	}

	if f.optimizer.calls != 1 {
		t.Errorf("optimizer calls = %d, want 1", f.optimizer.calls)
	}

	if len(f.store.saves) != 1 || f.store.saves[0] != snap(4, 8, 200) {
		t.Errorf("baseline saves = %+v, want exactly the current sample", f.store.saves)
	}

	if len(f.gate.records) != 2 {
		t.Errorf("cooldown records = %v, want both types recorded", f.gate.records)
	}

	// Stabilization delay requested before the optimizer ran.
	if len(f.slept) != 1 || f.slept[0] != 30*time.Second {
		t.Errorf("slept = %v, want one stabilization delay of 30s", f.slept)
	}

	if len(f.store.reports) != 1 || !f.store.reports[0].Changed {
		t.Errorf("change report not recorded: %+v", f.store.reports)
	}
}

// TestOptimizationFailureRetriesNextCycle verifies failed optimization
// leaves the baseline untouched so the same change re-detects, giving
// at-least-once semantics.
func TestOptimizationFailureRetriesNextCycle(t *testing.T) {
	f := newFixture()
	f.optimizer.err = errors.New("tuning failed")

	err := f.monitor.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if len(f.store.saves) != 0 {
		t.Errorf("baseline must not move on failure, saves = %+v", f.store.saves)
	}
	if len(f.notifier.calls) != 1 || f.notifier.calls[0].typ != "hardware_change" {
		t.Errorf("only the change notification should go out, got %v", f.notifier.calls)
	}

	// Next cycle re-detects and retries.
	f.optimizer.err = nil
	if err := f.monitor.RunCycle(context.Background()); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if f.optimizer.calls != 2 {
		t.Errorf("optimizer calls = %d, want 2 (original + retry)", f.optimizer.calls)
	}
	if len(f.store.saves) != 1 {
		t.Errorf("baseline should commit on the retry, saves = %+v", f.store.saves)
	}
}

// TestCooldownSuppressesNotificationNotOptimizer covers the second
// end-to-end scenario: within the cooldown window the notifier is skipped
// but the optimizer still runs.
func TestCooldownSuppressesNotificationNotOptimizer(t *testing.T) {
	f := newFixture()
	f.gate.blocked["hardware_change"] = true
	f.gate.blocked["optimization_completed"] = true

	report := hardware.Detect(f.sampler.snap, f.store.snap, f.monitor.cfg.Thresholds)
	if err := f.monitor.TriggerOptimization(context.Background(), report); err != nil {
		t.Fatalf("TriggerOptimization: %v", err)
	}

	if len(f.notifier.calls) != 0 {
		t.Errorf("notifier should be suppressed by cooldown, got %v", f.notifier.calls)
	}
	if f.optimizer.calls != 1 {
		t.Errorf("optimizer calls = %d, want 1 despite cooldown", f.optimizer.calls)
	}
	if len(f.store.saves) != 1 {
		t.Errorf("baseline should still commit, saves = %+v", f.store.saves)
	}
}

// TestNotificationFailureDoesNotBlockPipeline verifies delivery failure is
// non-blocking and the cooldown is not recorded.
func TestNotificationFailureDoesNotBlockPipeline(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("no MTA installed")

	if err := f.monitor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if f.optimizer.calls != 1 {
		t.Errorf("optimizer calls = %d, want 1", f.optimizer.calls)
	}
	if len(f.store.saves) != 1 {
		t.Errorf("baseline should commit, saves = %+v", f.store.saves)
	}
	if len(f.gate.records) != 0 {
		t.Errorf("cooldown must only record successful sends, got %v", f.gate.records)
	}
}

// TestCheckOnceReportsWithoutActing verifies detection alone has no side
// effects on the pipeline.
func TestCheckOnceReportsWithoutActing(t *testing.T) {
	f := newFixture()

	report, err := f.monitor.CheckOnce()
	if err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if !report.Changed {
		t.Fatal("expected change to be reported")
	}
	if f.optimizer.calls != 0 || len(f.notifier.calls) != 0 || len(f.store.saves) != 0 {
		t.Error("CheckOnce must not notify, optimize, or move the baseline")
	}
}

// TestForceOptimizeBypassesDetection verifies the pipeline runs even when
// the sample matches the baseline.
func TestForceOptimizeBypassesDetection(t *testing.T) {
	f := newFixture()
	f.sampler.snap = f.store.snap

	if err := f.monitor.ForceOptimize(context.Background()); err != nil {
		t.Fatalf("ForceOptimize: %v", err)
	}
	if f.optimizer.calls != 1 {
		t.Errorf("optimizer calls = %d, want 1", f.optimizer.calls)
	}
}

// TestRunLoopStopsOnCancel verifies the loop exits only via context
// cancellation and survives failing cycles.
func TestRunLoopStopsOnCancel(t *testing.T) {
	f := newFixture()
	f.optimizer.err = errors.New("always failing")

	ctx, cancel := context.WithCancel(context.Background())

	cycles := 0
	f.monitor.OnCycle = func() { cycles++ }
	f.monitor.sleep = func(_ context.Context, d time.Duration) {
		// Stop after three poll intervals; stabilization sleeps don't count.
		if d == f.monitor.cfg.CheckInterval && cycles >= 3 {
			cancel()
		}
	}

	err := f.monitor.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if cycles != 3 {
		t.Errorf("cycles = %d, want 3", cycles)
	}
	// Every cycle failed, yet the loop kept retrying until cancelled.
	if f.optimizer.calls != 3 {
		t.Errorf("optimizer calls = %d, want 3", f.optimizer.calls)
	}
}
