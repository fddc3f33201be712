// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package platform isolates the OS-specific commands used by the probe and
// the post-install actions.
//
// # Key Types
//
//   - Platform: display-info command and parser, file manager, python names
//   - Darwin: system_profiler, open
//   - Linux: lspci, xdg-open
//   - Windows: wmic, explorer
//
// # Usage
//
//	p := platform.Current()
//	res, _ := runner.Run(ctx, p.DisplayInfoCommand())
//	gpus := p.ParseGPUNames(res.Stdout)
package platform
