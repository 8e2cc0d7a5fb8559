// Package static collects host facts that do not change while running.
package static

import (
	"context"
	"runtime"
	"time"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/pkg/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// CollectHost gathers OS, kernel, cpu and memory facts. The logical core
// count is required; every other field is best effort.
func CollectHost(ctx context.Context) (*models.HostInfo, error) {
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil || logical <= 0 {
		return nil, errors.WrapWithCode(err, errors.ErrProvider,
			"Failed to count logical cpu cores", "Check that /proc or sysctl is readable")
	}

	out := &models.HostInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUThreads: logical,
	}
	out.Timezone, _ = time.Now().Zone()

	if info, err := host.InfoWithContext(ctx); err == nil {
		out.Hostname = info.Hostname
		out.Platform = info.Platform
		out.PlatformFamily = info.PlatformFamily
		out.PlatformVersion = info.PlatformVersion
		out.KernelVersion = info.KernelVersion
		out.Virtualization = info.VirtualizationSystem
		out.BootTime = info.BootTime
		if info.KernelArch != "" {
			out.Arch = info.KernelArch
		}
	}

	// Physical core counts are unavailable in many containers.
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		out.CPUCores = physical
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		out.CPUModel = infos[0].ModelName
	}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.TotalMemory = vmem.Total
	}

	return out, nil
}
