// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package probe

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostReader reads OS, CPU, memory and disk figures.
type HostReader interface {
	OS(ctx context.Context) (name, version string, err error)
	CPU(ctx context.Context) (model string, logicalCores int, err error)
	Memory(ctx context.Context) (total, available uint64, err error)
	// Disks sums total and free space over all mounted volumes. Volumes
	// that cannot be read are skipped.
	Disks(ctx context.Context) (total, available uint64, err error)
}

// GopsutilReader implements HostReader with gopsutil. Each call reads live
// values.
type GopsutilReader struct{}

func (GopsutilReader) OS(ctx context.Context) (string, string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", "", err
	}
	return info.Platform, info.PlatformVersion, nil
}

func (GopsutilReader) CPU(ctx context.Context) (string, int, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", 0, err
	}
	var model string
	if len(infos) > 0 {
		model = infos[0].ModelName
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return model, 0, err
	}
	return model, cores, nil
}

func (GopsutilReader) Memory(ctx context.Context) (uint64, uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Available, nil
}

func (GopsutilReader) Disks(ctx context.Context) (uint64, uint64, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	var total, free uint64
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		total += usage.Total
		free += usage.Free
	}
	return total, free, nil
}
