// hardwatch detects hardware capacity changes on a workflow-automation
// server and triggers re-optimization.
//
// A background daemon periodically snapshots CPU cores, total memory, and
// free disk on the data partition, diffs the sample against a persisted
// baseline, and when the delta crosses configured thresholds it notifies the
// operator and invokes the external optimization action. The baseline only
// advances after a successful optimization, so failed runs are retried on
// the next poll.
//
// Usage:
//
//	hardwatch [flags]
//
// Flags:
//
//	-daemon           Run the detection loop
//	-check-once       Single detection pass (exit 0 if changed, 1 otherwise)
//	-force-optimize   Run the optimization pipeline, bypassing detection
//	-show-specs       Print the current hardware sample
//	-watch            Live terminal view of current vs baseline capacity
//	-test-email       Send a test notification and exit
//	-install-service  Install and enable the systemd unit
//	-start-service    Start the systemd unit
//	-stop-service     Stop the systemd unit
//	-status           Show daemon and systemd unit status
//	-health           Check the daemon heartbeat (exit 0 healthy, 1 otherwise)
//	-json             JSON output (with -show-specs or -health)
//	-config string    Path to configuration file (default: ~/.config/hardwatch/config.yaml)
//	-verbose          Enable verbose logging
//	-version          Print version and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"

	"gitlab.com/tinyland/lab/hardwatch/baseline"
	"gitlab.com/tinyland/lab/hardwatch/config"
	"gitlab.com/tinyland/lab/hardwatch/display"
	"gitlab.com/tinyland/lab/hardwatch/hardware"
	"gitlab.com/tinyland/lab/hardwatch/internal/format"
	"gitlab.com/tinyland/lab/hardwatch/notify"
	"gitlab.com/tinyland/lab/hardwatch/service"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to configuration file (default: ~/.config/hardwatch/config.yaml)")
		runDaemon      = flag.Bool("daemon", false, "Run the detection loop")
		checkOnce      = flag.Bool("check-once", false, "Single detection pass (exit 0 if changed, 1 otherwise)")
		forceOptimize  = flag.Bool("force-optimize", false, "Run the optimization pipeline, bypassing detection")
		showSpecs      = flag.Bool("show-specs", false, "Print the current hardware sample")
		runWatch       = flag.Bool("watch", false, "Live terminal view of current vs baseline capacity")
		testEmail      = flag.Bool("test-email", false, "Send a test notification and exit")
		installService = flag.Bool("install-service", false, "Install and enable the systemd unit")
		startService   = flag.Bool("start-service", false, "Start the systemd unit")
		stopService    = flag.Bool("stop-service", false, "Stop the systemd unit")
		showStatus     = flag.Bool("status", false, "Show daemon and systemd unit status")
		runHealth      = flag.Bool("health", false, "Check the daemon heartbeat")
		jsonOut        = flag.Bool("json", false, "JSON output (with -show-specs or -health)")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("hardwatch %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// ---------------------------------------------------------------
	// Context with signal handling
	// ---------------------------------------------------------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// ---------------------------------------------------------------
	// Service lifecycle (delegates to systemctl)
	// ---------------------------------------------------------------

	if *installService || *startService || *stopService {
		mgr := service.NewManager(logger)
		var err error
		switch {
		case *installService:
			err = mgr.Install(ctx)
		case *startService:
			err = mgr.Start(ctx)
		case *stopService:
			err = mgr.Stop(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "service operation failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *showStatus {
		os.Exit(printStatus(ctx, cfg, logger))
	}

	// ---------------------------------------------------------------
	// Health check
	// ---------------------------------------------------------------

	if *runHealth {
		os.Exit(checkHealth(cfg.Daemon.DataDir, cfg.CheckInterval(), *jsonOut))
	}

	// ---------------------------------------------------------------
	// Show specs
	// ---------------------------------------------------------------

	if *showSpecs {
		sampler := hardware.NewSampler(cfg.Daemon.DataPath, logger)
		snap := sampler.Sample()

		if *jsonOut {
			data, _ := json.MarshalIndent(snap, "", "  ")
			fmt.Println(string(data))
			os.Exit(0)
		}

		prev := loadBaselineIfAny(cfg, logger)
		styled := term.IsTerminal(os.Stdout.Fd())
		fmt.Print(display.RenderSpecs(snap, prev, styled))
		os.Exit(0)
	}

	// ---------------------------------------------------------------
	// Watch mode
	// ---------------------------------------------------------------

	if *runWatch {
		sampler := hardware.NewSampler(cfg.Daemon.DataPath, logger)
		prev := loadBaselineIfAny(cfg, logger)

		model := display.NewWatch(sampler, prev, cfg.Thresholds)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// ---------------------------------------------------------------
	// Test email
	// ---------------------------------------------------------------

	if *testEmail {
		notifier := notify.NewMailNotifier(cfg.Notify.Email, logger)
		body := fmt.Sprintf("Test notification from hardwatch %s.", version)
		if err := notifier.Notify(ctx, notify.TypeTestEmail, body); err != nil {
			fmt.Fprintf(os.Stderr, "test notification failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("test notification sent to %s\n", cfg.Notify.Email)
		os.Exit(0)
	}

	// ---------------------------------------------------------------
	// Detection modes
	// ---------------------------------------------------------------

	if *checkOnce {
		d, err := newDaemon(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
			os.Exit(1)
		}
		report, err := d.monitor.CheckOnce()
		if err != nil {
			fmt.Fprintf(os.Stderr, "detection failed: %v\n", err)
			os.Exit(1)
		}
		if report.Changed {
			fmt.Println("hardware change detected:")
			fmt.Println(report.Summary)
			os.Exit(0)
		}
		fmt.Println("no hardware change")
		os.Exit(1)
	}

	if *forceOptimize {
		d, err := newDaemon(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
			os.Exit(1)
		}
		if err := d.monitor.ForceOptimize(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "optimization failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *runDaemon {
		d, err := newDaemon(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "daemon init failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "starting hardwatch daemon v%s\n", version)
		if err := d.run(ctx); err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// ---------------------------------------------------------------
	// Default: print usage
	// ---------------------------------------------------------------

	fmt.Printf("hardwatch v%s (%s) built %s\n", version, commit, date)
	fmt.Println()
	fmt.Println("Usage: hardwatch [flags]")
	fmt.Println()
	flag.PrintDefaults()
}

// loadBaselineIfAny reads the persisted baseline for display purposes.
// Returns nil when no baseline exists or the store cannot be opened; the
// display modes degrade to sample-only output.
func loadBaselineIfAny(cfg *config.Config, logger *slog.Logger) *hardware.Snapshot {
	store, err := baseline.NewStore(cfg.Daemon.DataDir, logger)
	if err != nil {
		logger.Debug("baseline store unavailable", "error", err)
		return nil
	}
	snap, ok, err := store.Load()
	if err != nil || !ok {
		return nil
	}
	return &snap
}

// printStatus reports local daemon state plus the systemd unit status.
func printStatus(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	store, err := baseline.NewStore(cfg.Daemon.DataDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	if snap, ok, err := store.Load(); err == nil && ok {
		fmt.Printf("baseline: cpu=%d cores, memory=%d GB, disk=%d GB free (saved %s)\n",
			snap.CPUCores, snap.MemoryGB, snap.DiskGB, format.FormatTimeSince(snap.Timestamp))
	} else {
		fmt.Println("baseline: not yet initialized")
	}

	if report, err := store.LoadLastChange(); err == nil && report != nil {
		fmt.Printf("last change (%s):\n%s\n", format.FormatTimeSince(report.Curr.Timestamp), report.Summary)
	}

	if status, err := readHealthFile(cfg.Daemon.DataDir); err == nil {
		fmt.Printf("last poll: %s (PID %d)\n", format.FormatTimeSince(status.LastPoll), status.PID)
	} else {
		fmt.Println("last poll: never (daemon heartbeat missing)")
	}

	out, err := service.NewManager(logger).Status(ctx)
	if err != nil {
		logger.Debug("systemctl status unavailable", "error", err)
		return 0
	}
	fmt.Println()
	fmt.Print(out)
	return 0
}
