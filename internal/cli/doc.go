// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the indextts-installer command tree.
//
// Commands either drive the installer in-process or talk to a running
// "serve" instance over its HTTP API. Every command accepts --json and
// then prints a JSONResponse envelope instead of text.
//
// # Key Types
//
//   - Options: I/O and dependency overrides for one command tree
//   - JSONResponse: Machine-readable output envelope
//   - InstallFailedError, RemoteError, ConfigError: mapped to exit codes
//
// # Commands Overview
//
// In-process:
//   - serve: HTTP API and Socket.IO progress channel
//   - install [path]: run an installation with the terminal UI or text lines
//   - info: host readiness report
//   - path, greet, version
//   - launch [path], open [path]
//   - history: recent runs from the run log
//
// Against a running server:
//   - progress [--watch]
//   - cancel [run-id]
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
package cli
