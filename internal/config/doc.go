// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// IndexTTS installer.
//
// Configuration is TOML with sensible defaults, a .env file, environment
// variable overrides, validation and a locale-selected message catalog.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - InstallConfig: Step pacing, deadlines and retry policy
//   - ServerConfig: Local API listener, auth token and rate limits
//   - Catalog: Progress and failure texts for the selected locale
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (INDEXTTS_*)
//   - ~/.indextts-installer/.env
//   - ~/.indextts-installer/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Resolve progress texts:
//
//	msgs := cfg.Catalog()
//	fmt.Println(msgs.Text(config.MsgPreparing))
//
// Hot reload while serving:
//
//	go config.Watch(ctx, path, config.DefaultWatchDebounce, logger, apply)
package config
