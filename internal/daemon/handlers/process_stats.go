package handlers

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is the daemon's own resource usage. Watch backends hold one
// descriptor per watched directory on some platforms, so NumFDs tracks the
// cost of the watched roots.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	NumFDs     int32   `json:"numFds"`
	NumThreads int32   `json:"numThreads"`
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpuPercent"`
}

// selfStats reads the current process. Fields the platform can't report are
// left zero.
func selfStats() *ProcessStats {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}

	stats := &ProcessStats{PID: p.Pid}
	if n, err := p.NumFDs(); err == nil {
		stats.NumFDs = n
	}
	if n, err := p.NumThreads(); err == nil {
		stats.NumThreads = n
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSS = mem.RSS
	}
	if pct, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = pct
	}
	return stats
}
