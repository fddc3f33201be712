// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package installer runs the IndexTTS installation pipeline.
//
// Start checks the request synchronously and then runs five steps in a
// background goroutine: prepare, clone the repository, install Python
// dependencies, create the models directory, complete. Every step is
// published to a progress.Tracker; a failure publishes the error state and
// stops the run.
//
// Clone and dependency install run under their own deadlines and retry
// transient network failures with exponential backoff.
//
// # Key Types
//
//   - Orchestrator: owns the active run and its cancel function
//   - InstallConfig: the caller's request
//   - Settings: tools, repository, pacing and message catalog
//   - RunRecorder: run history sink, satisfied by history.Store
//
// # Usage
//
//	orch := installer.New(runner, tracker, installer.SettingsFromConfig(cfg)).
//	    WithRecorder(store).
//	    WithLogger(logger)
//	runID, err := orch.Start(ctx, installer.InstallConfig{InstallPath: path})
package installer
