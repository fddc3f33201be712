// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history records installation attempts in a local SQLite database
// so failed runs can be inspected after the GUI is closed.
//
// # Key Types
//
//   - Store: SQLite-backed run log (pure Go driver, no cgo)
//   - Run: one attempt with its start, terminal step and message
//
// # Usage
//
//	store, err := history.Open(cfg.HistoryPath())
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	runs, err := store.List(ctx, 10)
package history
