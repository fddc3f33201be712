// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package probe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/indextts-installer/internal/execx"
	"github.com/jeranaias/indextts-installer/internal/platform"
)

// =============================================================================
// TYPES
// =============================================================================

// Unknown is reported for OS and CPU fields that could not be read.
const Unknown = "Unknown"

// DefaultTimeout bounds each probe subprocess.
const DefaultTimeout = 10 * time.Second

// SystemInfo is a one-shot snapshot of the host's capabilities.
type SystemInfo struct {
	OS                 string   `json:"os"`
	OSVersion          string   `json:"os_version"`
	CPUName            string   `json:"cpu_name"`
	CPUCores           int      `json:"cpu_cores"`
	TotalMemory        uint64   `json:"total_memory"`
	AvailableMemory    uint64   `json:"available_memory"`
	TotalDiskSpace     uint64   `json:"total_disk_space"`
	AvailableDiskSpace uint64   `json:"available_disk_space"`
	GPUInfo            []string `json:"gpu_info"`
	PythonVersion      *string  `json:"python_version"`
	GitVersion         *string  `json:"git_version"`
	CUDAAvailable      bool     `json:"cuda_available"`
}

// =============================================================================
// PROBER
// =============================================================================

// Prober gathers SystemInfo. Sub-probes degrade independently.
type Prober struct {
	runner   execx.Runner
	platform platform.Platform
	host     HostReader
	timeout  time.Duration
	git      string
	logger   zerolog.Logger
}

// NewProber creates a Prober backed by gopsutil.
func NewProber(runner execx.Runner, plat platform.Platform) *Prober {
	return &Prober{
		runner:   runner,
		platform: plat,
		host:     GopsutilReader{},
		timeout:  DefaultTimeout,
		git:      "git",
		logger:   zerolog.Nop(),
	}
}

// WithHost replaces the host reader.
func (p *Prober) WithHost(h HostReader) *Prober {
	p.host = h
	return p
}

// WithTimeout sets the per-subprocess deadline.
func (p *Prober) WithTimeout(d time.Duration) *Prober {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// WithGit sets the git executable.
func (p *Prober) WithGit(git string) *Prober {
	if git != "" {
		p.git = git
	}
	return p
}

// WithLogger sets the logger.
func (p *Prober) WithLogger(l zerolog.Logger) *Prober {
	p.logger = l
	return p
}

// SystemInfo runs every sub-probe concurrently. It only fails when ctx is
// cancelled.
func (p *Prober) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := &SystemInfo{OS: Unknown, OSVersion: Unknown, CPUName: Unknown}
	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	// Each goroutine writes disjoint fields.
	run(func() { p.probeOS(ctx, info) })
	run(func() { p.probeCPU(ctx, info) })
	run(func() { p.probeMemory(ctx, info) })
	run(func() { p.probeDisks(ctx, info) })
	run(func() { info.GPUInfo = p.GPUNames(ctx) })
	run(func() { info.PythonVersion = p.PythonVersion(ctx) })
	run(func() { info.GitVersion = p.toolVersion(ctx, p.git) })
	run(func() { info.CUDAAvailable = p.CUDAAvailable(ctx) })
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return info, nil
}

func (p *Prober) probeOS(ctx context.Context, info *SystemInfo) {
	name, version, err := p.host.OS(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("os probe failed")
	}
	if name != "" {
		info.OS = name
	}
	if version != "" {
		info.OSVersion = version
	}
}

func (p *Prober) probeCPU(ctx context.Context, info *SystemInfo) {
	model, cores, err := p.host.CPU(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("cpu probe failed")
	}
	if model = strings.TrimSpace(model); model != "" {
		info.CPUName = model
	}
	info.CPUCores = cores
}

func (p *Prober) probeMemory(ctx context.Context, info *SystemInfo) {
	total, avail, err := p.host.Memory(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("memory probe failed")
		return
	}
	info.TotalMemory, info.AvailableMemory = total, avail
}

func (p *Prober) probeDisks(ctx context.Context, info *SystemInfo) {
	total, avail, err := p.host.Disks(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("disk probe failed")
		return
	}
	info.TotalDiskSpace, info.AvailableDiskSpace = total, avail
}

// GPUNames lists display adapters, or [UnknownGPU] when none are found.
func (p *Prober) GPUNames(ctx context.Context) []string {
	cmd := p.platform.DisplayInfoCommand()
	cmd.Timeout = p.timeout

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		p.logger.Debug().Err(err).Str("tool", cmd.Name).Msg("gpu probe failed")
		return []string{platform.UnknownGPU}
	}
	names := p.platform.ParseGPUNames(res.Stdout)
	if len(names) == 0 {
		return []string{platform.UnknownGPU}
	}
	return names
}

// PythonVersion returns the first non-empty `--version` output among the
// platform's interpreter candidates.
func (p *Prober) PythonVersion(ctx context.Context) *string {
	for _, candidate := range p.platform.PythonCandidates() {
		if v := p.toolVersion(ctx, candidate); v != nil {
			return v
		}
	}
	return nil
}

// toolVersion runs `<tool> --version` and returns trimmed stdout. Stderr is
// ignored and a non-zero exit still counts if stdout has text.
func (p *Prober) toolVersion(ctx context.Context, tool string) *string {
	res, err := p.runner.Run(ctx, execx.Command{Name: tool, Args: []string{"--version"}, Timeout: p.timeout})
	if err != nil && errors.Is(err, execx.ErrToolNotFound) {
		return nil
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return nil
	}
	return &out
}

// CUDAAvailable reports whether nvidia-smi runs and exits zero.
func (p *Prober) CUDAAvailable(ctx context.Context) bool {
	_, err := p.runner.Run(ctx, execx.Command{Name: "nvidia-smi", Timeout: p.timeout})
	return err == nil
}
