package diagnostics

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
)

// Free-space thresholds for the storage root, in megabytes.
const (
	diskWarnFreeMB     = 512
	diskCriticalFreeMB = 64
)

// HealthWarning is a single concern found by CheckHealth.
type HealthWarning struct {
	Level   string  `json:"level"` // "warning" or "critical"
	Type    string  `json:"type"`  // "storage", "directory", "disk"
	Message string  `json:"message"`
	Value   float64 `json:"value,omitempty"`
	Limit   float64 `json:"limit,omitempty"`
}

// HealthReport describes whether dumps can currently be written.
type HealthReport struct {
	Root      string `json:"root"`
	Dir       string `json:"dir"`
	Available bool   `json:"available"`
	DirExists bool   `json:"dir_exists"`
	Writable  bool   `json:"writable"`
	DumpCount int    `json:"dump_count"`

	DiskFreeMB  float64 `json:"disk_free_mb"`
	DiskPercent float64 `json:"disk_percent"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	LoadAvg1    float64 `json:"load_avg_1"`

	Warnings []HealthWarning `json:"warnings,omitempty"`
}

// Healthy reports whether no critical warning was raised.
func (r HealthReport) Healthy() bool {
	for _, w := range r.Warnings {
		if w.Level == "critical" {
			return false
		}
	}
	return true
}

// healthProbes are swapped in tests.
type healthProbes struct {
	diskUsage func(path string) (*disk.UsageStat, error)
	cpuInfo   func() ([]cpu.InfoStat, error)
	loadAvg   func() (*load.AvgStat, error)
}

var defaultHealthProbes = healthProbes{
	diskUsage: disk.Usage,
	cpuInfo:   cpu.Info,
	loadAvg:   load.Avg,
}

// CheckHealth probes the writer's storage without modifying it, except for
// a short-lived probe file when the crash directory already exists.
func (w *DumpWriter) CheckHealth() HealthReport {
	return w.checkHealth(defaultHealthProbes)
}

func (w *DumpWriter) checkHealth(p healthProbes) HealthReport {
	r := HealthReport{Root: w.storage.Root(), Dir: w.Dir()}

	if err := w.storage.Available(); err != nil {
		r.Warnings = append(r.Warnings, HealthWarning{
			Level:   "critical",
			Type:    "storage",
			Message: fmt.Sprintf("storage root unavailable: %v", err),
		})
		return r
	}
	r.Available = true

	r.DirExists = w.storage.PathExists(r.Dir)
	if r.DirExists {
		probe := filepath.Join(r.Dir, ".doctor-probe")
		if err := w.storage.WriteFile(probe, []byte("ok")); err != nil {
			r.Warnings = append(r.Warnings, HealthWarning{
				Level:   "critical",
				Type:    "directory",
				Message: fmt.Sprintf("crash directory not writable: %v", err),
			})
		} else {
			r.Writable = true
			_ = w.storage.Remove(probe)
		}
		if dumps, err := w.List(); err == nil {
			r.DumpCount = len(dumps)
		}
	} else {
		r.Warnings = append(r.Warnings, HealthWarning{
			Level:   "warning",
			Type:    "directory",
			Message: "crash directory does not exist yet; it is created on the first dump",
		})
	}

	if usage, err := p.diskUsage(r.Root); err == nil {
		r.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		r.DiskPercent = usage.UsedPercent
		if r.DiskFreeMB < diskWarnFreeMB {
			level, limit := "warning", float64(diskWarnFreeMB)
			if r.DiskFreeMB < diskCriticalFreeMB {
				level, limit = "critical", float64(diskCriticalFreeMB)
			}
			r.Warnings = append(r.Warnings, HealthWarning{
				Level:   level,
				Type:    "disk",
				Message: fmt.Sprintf("%.0f MB free on storage volume (threshold: %.0f MB)", r.DiskFreeMB, limit),
				Value:   r.DiskFreeMB,
				Limit:   limit,
			})
		}
	}
	if infos, err := p.cpuInfo(); err == nil && len(infos) > 0 {
		r.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if avg, err := p.loadAvg(); err == nil {
		r.LoadAvg1 = avg.Load1
	}

	return r
}
