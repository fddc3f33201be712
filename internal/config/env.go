// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - INDEXTTS_REPO_URL: overrides app.repo_url
//   - INDEXTTS_GIT, INDEXTTS_PIP, INDEXTTS_PYTHON: override tools.*
//   - INDEXTTS_HOST, INDEXTTS_PORT: override server.host / server.port
//   - INDEXTTS_AUTH_TOKEN: overrides server.auth_token
//   - INDEXTTS_LOG_LEVEL: overrides logging.level
//   - INDEXTTS_LOCALE: overrides locale
//   - INDEXTTS_STEP_DELAY_MS: overrides install.step_delay_ms
//   - INDEXTTS_HISTORY_PATH: overrides history.path
//   - INDEXTTS_HISTORY: "0"/"false" disables the run history
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("INDEXTTS_REPO_URL"); v != "" {
		c.App.RepoURL = v
	}
	if v := os.Getenv("INDEXTTS_GIT"); v != "" {
		c.Tools.Git = v
	}
	if v := os.Getenv("INDEXTTS_PIP"); v != "" {
		c.Tools.Pip = v
	}
	if v := os.Getenv("INDEXTTS_PYTHON"); v != "" {
		c.Tools.Python = v
	}
	if v := os.Getenv("INDEXTTS_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("INDEXTTS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("INDEXTTS_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("INDEXTTS_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("INDEXTTS_LOCALE"); v != "" {
		c.Locale = strings.ToLower(v)
	}
	if v := os.Getenv("INDEXTTS_STEP_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Install.StepDelayMS = ms
		}
	}
	if v := os.Getenv("INDEXTTS_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("INDEXTTS_HISTORY"); v != "" {
		c.History.Enabled = v == "1" || strings.ToLower(v) == "true"
	}
}
