// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the zerolog logger used across the installer.
//
// Components take a zerolog.Logger at construction; Component derives one
// from the global logger with a "component" field so lines can be filtered
// per subsystem.
//
// # Usage
//
//	closer, err := logging.Setup(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
//
//	log := logging.Component("installer")
//	log.Info().Str("run_id", id).Msg("installation started")
package logging
