// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress holds the installation progress record.
//
// One Tracker belongs to one installer instance. The pipeline publishes
// whole snapshots; the API polls Snapshot and the push channel and terminal
// UI consume Subscribe.
//
// # Key Types
//
//   - Step: idle, preparing, cloning, cloned, dependencies, deps_installed,
//     models, completed, error
//   - Snapshot: step, percentage, message, terminal flags and run ID
//   - Tracker: mutex-guarded record with change notification
//
// # Usage
//
//	t := progress.NewTracker("Ready to install")
//	updates, stop := t.Subscribe(16)
//	defer stop()
//	t.Publish(progress.Snapshot{Step: progress.StepPreparing, Progress: 5})
package progress
