package mockapi

import (
	"context"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type hostSnapshot struct {
	Hostname   string  `json:"hostname"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	UptimeSecs uint64  `json:"uptime_secs"`
}

// sampleHost reads host stats. Any reading that fails is left at zero.
func sampleHost(ctx context.Context) *hostSnapshot {
	snap := &hostSnapshot{}
	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = info.Hostname
		snap.UptimeSecs = info.Uptime
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = round1(pct[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemPercent = round1(vm.UsedPercent)
	}
	return snap
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
