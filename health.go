package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HealthStatus represents the daemon health check output.
type HealthStatus struct {
	Status   string    `json:"status"`
	LastPoll time.Time `json:"last_poll"`
	PID      int       `json:"pid"`
}

// healthFile is the filename for the daemon heartbeat within the data directory.
const healthFile = "health.json"

// writeHealthFile writes the heartbeat to the data directory. The write is
// atomic (temp file + rename): -status and -health read this file from
// other processes.
func writeHealthFile(dataDir string) error {
	status := HealthStatus{
		Status:   "ok",
		LastPoll: time.Now(),
		PID:      os.Getpid(),
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}

	path := filepath.Join(dataDir, healthFile)

	tmp, err := os.CreateTemp(dataDir, ".tmp-"+healthFile+"-*")
	if err != nil {
		return fmt.Errorf("create temp health file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp health file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp health file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp health file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename health file: %w", err)
	}

	success = true
	return nil
}

// readHealthFile reads the heartbeat from the data directory.
func readHealthFile(dataDir string) (*HealthStatus, error) {
	path := filepath.Join(dataDir, healthFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read health file: %w", err)
	}

	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal health file: %w", err)
	}

	return &status, nil
}

// checkHealth reads the heartbeat and reports whether the daemon is healthy.
// Healthy means the health file exists and the last poll was within 2x the
// check interval. Returns exit code 0 for healthy, 1 for unhealthy/missing.
func checkHealth(dataDir string, checkInterval time.Duration, jsonOutput bool) int {
	status, err := readHealthFile(dataDir)
	if err != nil {
		if jsonOutput {
			fmt.Println(`{"status":"missing","error":"no health file found"}`)
		} else {
			fmt.Fprintln(os.Stderr, "daemon not running (no health file)")
		}
		return 1
	}

	staleThreshold := 2 * checkInterval
	age := time.Since(status.LastPoll)
	isStale := age > staleThreshold

	if jsonOutput {
		output := map[string]interface{}{
			"status":    status.Status,
			"pid":       status.PID,
			"last_poll": status.LastPoll.Format(time.RFC3339),
			"age":       age.String(),
			"stale":     isStale,
		}
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(data))
	} else {
		if isStale {
			fmt.Fprintf(os.Stderr, "daemon stale (last poll %s ago, threshold %s)\n",
				age.Round(time.Second), staleThreshold)
		} else {
			fmt.Printf("daemon healthy (PID %d, last poll %s ago)\n",
				status.PID, age.Round(time.Second))
		}
	}

	if isStale {
		return 1
	}
	return 0
}
