// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the installer packages.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateRunesHead: Keeps the end of a string, ellipsis in front
//   - TrimOutput: Whitespace trim plus tail cap for subprocess output
//
// # Usage
//
//	// Persist the config without leaving a half-written file behind
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Keep pip's stderr bounded before it lands in a progress message
//	msg := util.TrimOutput(stderr, util.MaxOutputRunes)
package util
