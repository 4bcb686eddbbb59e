// Package hardware provides point-in-time readings of machine capacity
// (CPU cores, memory, free disk) and threshold-based change detection
// between two such readings.
package hardware

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"

	"gitlab.com/tinyland/lab/hardwatch/internal/format"
)

// Fallback values used when a metric cannot be read. Sampling must never
// fail a poll cycle, so every dimension always has a comparable value.
const (
	FallbackCPUCores = 1
	FallbackMemoryGB = 1
	FallbackDiskGB   = 20
)

const gb = 1024 * 1024 * 1024

// Snapshot is a point-in-time reading of hardware capacity. Field names
// match the on-disk baseline format.
type Snapshot struct {
	// Timestamp records when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
	// CPUCores is the number of logical CPU cores.
	CPUCores int `json:"cpu_cores"`
	// MemoryGB is the total physical memory, rounded to whole gigabytes.
	MemoryGB int `json:"memory_gb"`
	// DiskGB is the free space on the data partition in whole gigabytes.
	DiskGB int `json:"disk_gb"`
	// Hostname is the machine hostname at capture time.
	Hostname string `json:"hostname"`
	// Uptime is a human-readable uptime string (e.g. "3d 4h").
	Uptime string `json:"uptime"`
}

// IsZero reports whether the snapshot carries no captured data.
func (s Snapshot) IsZero() bool {
	return s.Timestamp.IsZero() && s.CPUCores == 0 && s.MemoryGB == 0 && s.DiskGB == 0
}

// Sampler reads hardware capacity from the operating system. Partial read
// failures degrade to documented fallback values rather than erroring, so
// the detection loop always has a value to compare.
type Sampler struct {
	logger *slog.Logger

	// dataPath is the mount point whose free space is sampled.
	dataPath string

	// Overridable readers for testing.
	cpuCounts     func(logical bool) (int, error)
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	hostInfo      func() (*host.InfoStat, error)
	statfs        func(path string, buf *unix.Statfs_t) error
	now           func() time.Time
}

// NewSampler creates a Sampler for the given data partition mount point.
// An empty dataPath defaults to "/". If logger is nil, a no-op logger is used.
func NewSampler(dataPath string, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dataPath == "" {
		dataPath = "/"
	}
	return &Sampler{
		logger:        logger,
		dataPath:      dataPath,
		cpuCounts:     cpu.Counts,
		virtualMemory: mem.VirtualMemory,
		hostInfo:      host.Info,
		statfs:        unix.Statfs,
		now:           time.Now,
	}
}

// Sample captures the current hardware capacity. It never returns an error:
// any unreadable metric falls back to FallbackCPUCores / FallbackMemoryGB /
// FallbackDiskGB and the failure is logged as a warning.
func (s *Sampler) Sample() Snapshot {
	snap := Snapshot{Timestamp: s.now()}

	cores, err := s.cpuCounts(true)
	if err != nil || cores <= 0 {
		s.logger.Warn("could not read CPU core count, using fallback",
			"fallback", FallbackCPUCores, "error", err)
		cores = FallbackCPUCores
	}
	snap.CPUCores = cores

	vm, err := s.virtualMemory()
	if err != nil || vm == nil || vm.Total == 0 {
		s.logger.Warn("could not read total memory, using fallback",
			"fallback_gb", FallbackMemoryGB, "error", err)
		snap.MemoryGB = FallbackMemoryGB
	} else {
		snap.MemoryGB = roundToGB(vm.Total)
	}

	var fs unix.Statfs_t
	if err := s.statfs(s.dataPath, &fs); err != nil {
		s.logger.Warn("could not read free disk space, using fallback",
			"path", s.dataPath, "fallback_gb", FallbackDiskGB, "error", err)
		snap.DiskGB = FallbackDiskGB
	} else {
		free := uint64(fs.Bavail) * uint64(fs.Bsize)
		snap.DiskGB = int(free / gb)
	}

	info, err := s.hostInfo()
	if err != nil || info == nil {
		// host.Info failure still leaves os.Hostname as a cheap second try.
		name, herr := os.Hostname()
		if herr != nil {
			name = "unknown"
		}
		snap.Hostname = name
		snap.Uptime = "unknown"
	} else {
		snap.Hostname = info.Hostname
		snap.Uptime = format.FormatDuration(time.Duration(info.Uptime) * time.Second)
	}

	s.logger.Debug("hardware sampled",
		"cpu_cores", snap.CPUCores,
		"memory_gb", snap.MemoryGB,
		"disk_gb", snap.DiskGB,
		"hostname", snap.Hostname,
	)

	return snap
}

// roundToGB converts bytes to whole gigabytes, rounding to nearest.
// Physical memory reported by the kernel is slightly below the installed
// size (reserved regions), so flooring would report a 4 GB machine as 3 GB.
func roundToGB(bytes uint64) int {
	n := int((bytes + gb/2) / gb)
	if n < 1 {
		n = 1
	}
	return n
}
