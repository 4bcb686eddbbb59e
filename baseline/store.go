// Package baseline persists the last hardware snapshot the daemon believes
// is current, plus the most recent change report. Files live in a single
// data directory:
//
//	/var/lib/hardwatch/
//	  baseline.json
//	  baseline.json.backup
//	  last_change.json
package baseline

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gitlab.com/tinyland/lab/hardwatch/hardware"
)

const (
	baselineFile   = "baseline.json"
	backupSuffix   = ".backup"
	lastChangeFile = "last_change.json"
)

// Store reads and writes the baseline snapshot. The daemon is the single
// writer; writes are atomic (temp file + rename) so a concurrent inspector
// never observes a partial file.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a baseline store rooted at dir, creating the directory
// with 0755 permissions if needed. If logger is nil, a no-op logger is used.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("baseline: create directory %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Path returns the baseline file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, baselineFile)
}

// BackupPath returns the path of the previous baseline's backup copy.
func (s *Store) BackupPath() string {
	return s.Path() + backupSuffix
}

// Load reads the persisted baseline. A missing file returns a zero snapshot
// and ok=false rather than an error (first run). A corrupt file is removed
// and treated the same as a missing one.
func (s *Store) Load() (hardware.Snapshot, bool, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return hardware.Snapshot{}, false, nil
		}
		return hardware.Snapshot{}, false, fmt.Errorf("baseline: read %s: %w", s.Path(), err)
	}

	var snap hardware.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("baseline: removing corrupt file", "path", s.Path(), "error", err)
		_ = os.Remove(s.Path())
		return hardware.Snapshot{}, false, nil
	}

	return snap, true, nil
}

// Save persists snap as the new baseline. If a baseline already exists, its
// contents are copied to the .backup sibling first, so the immediately
// previous version is always recoverable.
func (s *Store) Save(snap hardware.Snapshot) error {
	if prev, err := os.ReadFile(s.Path()); err == nil {
		if err := s.writeAtomic(s.BackupPath(), prev); err != nil {
			return fmt.Errorf("baseline: write backup: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("baseline: read current for backup: %w", err)
	}

	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("baseline: marshal: %w", err)
	}
	if err := s.writeAtomic(s.Path(), encoded); err != nil {
		return fmt.Errorf("baseline: write: %w", err)
	}

	s.logger.Info("baseline saved",
		"path", s.Path(),
		"cpu_cores", snap.CPUCores,
		"memory_gb", snap.MemoryGB,
		"disk_gb", snap.DiskGB,
	)
	return nil
}

// SaveLastChange records the most recent change report for inspection by
// the watch view and status command. Best effort: the report is derived
// state, never consulted by detection.
func (s *Store) SaveLastChange(report hardware.ChangeReport) error {
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("baseline: marshal change report: %w", err)
	}
	if err := s.writeAtomic(filepath.Join(s.dir, lastChangeFile), encoded); err != nil {
		return fmt.Errorf("baseline: write change report: %w", err)
	}
	return nil
}

// LoadLastChange reads the most recent change report. Returns nil without
// error if none has been recorded.
func (s *Store) LoadLastChange() (*hardware.ChangeReport, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, lastChangeFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("baseline: read change report: %w", err)
	}

	var report hardware.ChangeReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("baseline: unmarshal change report: %w", err)
	}
	return &report, nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+filepath.Base(path)+"-*")
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
