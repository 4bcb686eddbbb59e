// Package notify delivers operator notifications through whichever mail
// transport agent is installed, rate-limited per notification type by a
// file-backed cooldown gate.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Notification types used by the monitor loop.
const (
	TypeHardwareChange        = "hardware_change"
	TypeOptimizationCompleted = "optimization_completed"
	TypeTestEmail             = "test_email"
)

// CooldownGate prevents notification spam: no two notifications of the same
// type are sent within the cooldown window. State is one file per type under
// the cooldown directory, content = unix epoch seconds of the last send.
type CooldownGate struct {
	dir    string
	window time.Duration
	logger *slog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// NewCooldownGate creates a gate over dir with the given window.
// If logger is nil, a no-op logger is used.
func NewCooldownGate(dir string, window time.Duration, logger *slog.Logger) *CooldownGate {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CooldownGate{
		dir:    dir,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allowed reports whether a notification of the given type may be sent now.
// True if no cooldown file exists for the type or the stored timestamp is
// older than the window. A malformed file is removed and treated as allowed,
// so the gate self-heals on the next Record.
func (g *CooldownGate) Allowed(typ string) bool {
	path := g.path(typ)

	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}

	epoch, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		g.logger.Warn("removing malformed cooldown file", "type", typ, "path", path)
		_ = os.Remove(path)
		return true
	}

	last := time.Unix(epoch, 0)
	return g.now().Sub(last) >= g.window
}

// Record stores the current time as the last-sent timestamp for the type,
// creating the cooldown directory if needed. Called only after a successful
// send. The write is atomic (temp file + rename) so a concurrent Allowed
// never observes a truncated file.
func (g *CooldownGate) Record(typ string) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("notify: create cooldown directory %s: %w", g.dir, err)
	}

	epoch := strconv.FormatInt(g.now().Unix(), 10)
	if err := g.writeAtomic(g.path(typ), []byte(epoch)); err != nil {
		return fmt.Errorf("notify: write cooldown for %s: %w", typ, err)
	}
	return nil
}

func (g *CooldownGate) path(typ string) string {
	return filepath.Join(g.dir, typ)
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func (g *CooldownGate) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(g.dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any failure path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}

	success = true
	return nil
}
