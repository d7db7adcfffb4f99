package monitor

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type HostStats struct {
	Hostname      string  `json:"hostname"`
	CPUPercent    float64 `json:"cpu_percent"`
	CPUCount      int     `json:"cpu_count"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryTotal   uint64  `json:"memory_total"`
	DiskPercent   float64 `json:"disk_percent"`
	Uptime        uint64  `json:"uptime_seconds"`
}

type HostSampler interface {
	Sample(ctx context.Context) (HostStats, error)
}

// SystemSampler reads host stats through gopsutil.
type SystemSampler struct {
	DiskPath string
}

func NewSystemSampler() *SystemSampler {
	return &SystemSampler{DiskPath: "/"}
}

func (s *SystemSampler) Sample(ctx context.Context) (HostStats, error) {
	var out HostStats

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return out, err
	}
	out.Hostname = info.Hostname
	out.Uptime = info.Uptime

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return out, err
	}
	if len(percents) > 0 {
		out.CPUPercent = percents[0]
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CPUCount = n
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, err
	}
	out.MemoryPercent = vm.UsedPercent
	out.MemoryUsed = vm.Used
	out.MemoryTotal = vm.Total

	usage, err := disk.UsageWithContext(ctx, s.DiskPath)
	if err != nil {
		return out, err
	}
	out.DiskPercent = usage.UsedPercent
	return out, nil
}
