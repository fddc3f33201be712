// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui renders a running installation in the terminal.
//
// The model reads progress snapshots from a channel, draws a stage
// checklist with a spinner and a progress bar, and exits when the run
// reaches a terminal step. Q or Ctrl+C asks the run to stop; pressing it
// again leaves without waiting.
//
// # Usage
//
//	updates, stop := svc.SubscribeProgress(16)
//	defer stop()
//	started, _ := svc.StartInstallation(ctx, req)
//	m := tui.New(updates, started.RunID, req.InstallPath, cancel)
//	final, err := tui.Run(ctx, m)
package tui
