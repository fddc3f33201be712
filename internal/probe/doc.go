// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package probe reports what the host can offer IndexTTS: OS, CPU, memory,
// disk, display adapters, Python, Git and CUDA.
//
// Host figures come from gopsutil; the rest comes from running the tools.
// A failing sub-probe falls back to "Unknown", zero, nil or false and never
// fails the whole query.
//
// # Key Types
//
//   - SystemInfo: JSON snapshot returned to the GUI
//   - Prober: runs the sub-probes with a per-command deadline
//   - HostReader: gopsutil seam for tests
//
// # Usage
//
//	p := probe.NewProber(runner, platform.Current()).WithTimeout(5 * time.Second)
//	info, err := p.SystemInfo(ctx)
package probe
