// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the installer backend together behind one Service.
//
// A Service owns the progress tracker, the install orchestrator and the run
// history. It builds probes and launchers from the current configuration on
// each call, so ApplyConfig takes effect without a restart.
//
// # Usage
//
//	svc, err := app.New(cfg, app.Options{})
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	started, err := svc.StartInstallation(ctx, installer.InstallConfig{
//	    InstallPath: svc.DefaultInstallPath(),
//	})
package app
