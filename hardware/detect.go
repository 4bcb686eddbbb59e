package hardware

import (
	"fmt"
	"strings"
)

// Thresholds holds the minimum absolute delta, per dimension, that
// constitutes a hardware change. A delta exactly equal to the threshold
// counts as a change.
type Thresholds struct {
	// CPUCores is the minimum core-count delta.
	CPUCores int `yaml:"cpu_cores"`
	// MemoryGB is the minimum memory delta in gigabytes.
	MemoryGB int `yaml:"memory_gb"`
	// DiskGB is the minimum free-disk delta in gigabytes.
	DiskGB int `yaml:"disk_gb"`
}

// ChangeReport is the outcome of comparing two snapshots. It is derived
// fresh on every poll cycle and never persisted as authoritative state.
type ChangeReport struct {
	// Changed is true if any dimension moved by at least its threshold.
	Changed bool `json:"changed"`
	// Summary holds one human-readable line per changed dimension.
	Summary string `json:"summary"`
	// Prev is the baseline snapshot the comparison ran against.
	Prev Snapshot `json:"prev"`
	// Curr is the freshly sampled snapshot.
	Curr Snapshot `json:"curr"`
}

// Detect compares a current snapshot against the previous baseline. For each
// of CPU, memory, and disk it computes the absolute delta and marks the
// dimension changed when the delta meets or exceeds the threshold. The
// report's summary carries one line per changed dimension.
func Detect(curr, prev Snapshot, th Thresholds) ChangeReport {
	report := ChangeReport{Prev: prev, Curr: curr}

	var lines []string

	// A zero delta is never a change, even with a zero threshold, so
	// identical snapshots can never trigger.
	if delta := abs(curr.CPUCores - prev.CPUCores); delta > 0 && delta >= th.CPUCores {
		report.Changed = true
		lines = append(lines, fmt.Sprintf("CPU cores: %d -> %d (delta %d)",
			prev.CPUCores, curr.CPUCores, delta))
	}
	if delta := abs(curr.MemoryGB - prev.MemoryGB); delta > 0 && delta >= th.MemoryGB {
		report.Changed = true
		lines = append(lines, fmt.Sprintf("Memory: %d GB -> %d GB (delta %d GB)",
			prev.MemoryGB, curr.MemoryGB, delta))
	}
	if delta := abs(curr.DiskGB - prev.DiskGB); delta > 0 && delta >= th.DiskGB {
		report.Changed = true
		lines = append(lines, fmt.Sprintf("Disk: %d GB -> %d GB free (delta %d GB)",
			prev.DiskGB, curr.DiskGB, delta))
	}

	report.Summary = strings.Join(lines, "\n")
	return report
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
