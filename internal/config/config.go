// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// IndexTTS installer.
//
// Configuration file location (in order of precedence):
//   - --config flag / INDEXTTS_CONFIG
//   - ~/.indextts-installer/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/indextts-installer/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete installer configuration.
type Config struct {
	// Locale selects the message catalog: "auto", "zh" or "en".
	Locale string `toml:"locale" json:"locale"`

	App     AppConfig     `toml:"app" json:"app"`
	Tools   ToolsConfig   `toml:"tools" json:"tools"`
	Install InstallConfig `toml:"install" json:"install"`
	Probe   ProbeConfig   `toml:"probe" json:"probe"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	History HistoryConfig `toml:"history" json:"history"`

	// Messages overrides individual catalog entries by key.
	Messages map[string]string `toml:"messages,omitempty" json:"messages,omitempty"`
}

// AppConfig describes the application being installed.
type AppConfig struct {
	Name                string `toml:"name" json:"name"`
	RepoURL             string `toml:"repo_url" json:"repo_url"`
	RequirementsFile    string `toml:"requirements_file" json:"requirements_file"`
	EntryPoint          string `toml:"entry_point" json:"entry_point"`
	ModelsDir           string `toml:"models_dir" json:"models_dir"`
	FallbackInstallPath string `toml:"fallback_install_path" json:"fallback_install_path"`
}

// ToolsConfig names the external executables. Bare names are resolved on PATH.
type ToolsConfig struct {
	Git string `toml:"git" json:"git"`
	Pip string `toml:"pip" json:"pip"`
	// Python is the interpreter used by launch. Empty means probe the
	// platform candidates.
	Python string `toml:"python" json:"python"`
}

// InstallConfig controls pacing, deadlines and retries of the pipeline.
type InstallConfig struct {
	StepDelayMS      int `toml:"step_delay_ms" json:"step_delay_ms"`
	CloneTimeoutSecs int `toml:"clone_timeout_secs" json:"clone_timeout_secs"`
	DepsTimeoutSecs  int `toml:"deps_timeout_secs" json:"deps_timeout_secs"`
	MaxRetries       int `toml:"max_retries" json:"max_retries"`
	RetryInitialMS   int `toml:"retry_initial_ms" json:"retry_initial_ms"`
}

// StepDelay returns the pause after each published step.
func (c InstallConfig) StepDelay() time.Duration {
	return time.Duration(c.StepDelayMS) * time.Millisecond
}

// CloneTimeout returns the deadline for git clone.
func (c InstallConfig) CloneTimeout() time.Duration {
	return time.Duration(c.CloneTimeoutSecs) * time.Second
}

// DepsTimeout returns the deadline for the dependency install.
func (c InstallConfig) DepsTimeout() time.Duration {
	return time.Duration(c.DepsTimeoutSecs) * time.Second
}

// RetryInitial returns the first backoff interval.
func (c InstallConfig) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMS) * time.Millisecond
}

// ProbeConfig controls the system capability probe.
type ProbeConfig struct {
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// Timeout returns the per-subprocess deadline of the probe.
func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig controls the local API server the GUI shell talks to.
type ServerConfig struct {
	Host           string   `toml:"host" json:"host"`
	Port           int      `toml:"port" json:"port"`
	AuthToken      string   `toml:"auth_token" json:"-"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" json:"rate_limit_burst"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	// File, when set, receives JSON log lines instead of the console.
	File string `toml:"file" json:"file"`
}

// HistoryConfig controls the install run log.
type HistoryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path of the SQLite database. Empty means <config dir>/history.db.
	Path string `toml:"path" json:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultPort is the default port of the local API server.
const DefaultPort = 8790

// Default returns a Config with the stock IndexTTS settings.
func Default() *Config {
	return &Config{
		Locale: "zh",

		App: AppConfig{
			Name:                "IndexTTS",
			RepoURL:             "https://github.com/X-T-E-R/IndexTTS.git",
			RequirementsFile:    "requirements.txt",
			EntryPoint:          "main.py",
			ModelsDir:           "checkpoints",
			FallbackInstallPath: "/Users/Shared/IndexTTS",
		},

		Tools: ToolsConfig{
			Git: "git",
			Pip: "pip",
		},

		Install: InstallConfig{
			StepDelayMS:      1000,
			CloneTimeoutSecs: 900,  // 15 minutes
			DepsTimeoutSecs:  3600, // torch wheels are large
			MaxRetries:       2,
			RetryInitialMS:   2000,
		},

		Probe: ProbeConfig{
			TimeoutSecs: 10,
		},

		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: DefaultPort,
			AllowedOrigins: []string{
				"tauri://localhost",
				"http://tauri.localhost",
				"http://localhost:1420",
				"http://127.0.0.1:1420",
			},
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the installer's configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".indextts-installer"), nil
}

// ConfigPath returns the config file path, honoring INDEXTTS_CONFIG.
func ConfigPath() (string, error) {
	if p := os.Getenv("INDEXTTS_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HistoryPath returns the resolved SQLite path for the run history.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file yields the
// defaults. The .env file next to it and INDEXTTS_* variables are applied on
// top, then the result is validated.
func LoadFromPath(path string) (*Config, error) {
	// Decoding onto the defaults keeps keys the file leaves out.
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills empty fields that have no meaningful zero value.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Locale == "" {
		c.Locale = d.Locale
	}
	if c.App.Name == "" {
		c.App.Name = d.App.Name
	}
	if c.App.RepoURL == "" {
		c.App.RepoURL = d.App.RepoURL
	}
	if c.App.RequirementsFile == "" {
		c.App.RequirementsFile = d.App.RequirementsFile
	}
	if c.App.EntryPoint == "" {
		c.App.EntryPoint = d.App.EntryPoint
	}
	if c.App.ModelsDir == "" {
		c.App.ModelsDir = d.App.ModelsDir
	}
	if c.App.FallbackInstallPath == "" {
		c.App.FallbackInstallPath = d.App.FallbackInstallPath
	}
	if c.Tools.Git == "" {
		c.Tools.Git = d.Tools.Git
	}
	if c.Tools.Pip == "" {
		c.Tools.Pip = d.Tools.Pip
	}
	if c.Install.CloneTimeoutSecs == 0 {
		c.Install.CloneTimeoutSecs = d.Install.CloneTimeoutSecs
	}
	if c.Install.DepsTimeoutSecs == 0 {
		c.Install.DepsTimeoutSecs = d.Install.DepsTimeoutSecs
	}
	if c.Probe.TimeoutSecs == 0 {
		c.Probe.TimeoutSecs = d.Probe.TimeoutSecs
	}
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = d.Server.RateLimitRPS
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = d.Server.RateLimitBurst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Encode writes cfg as TOML to w.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Save writes the configuration as TOML to path.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# IndexTTS installer configuration\n")
	buf.WriteString("# Generated by indextts-installer - edit with care\n\n")

	if err := Encode(&buf, cfg); err != nil {
		return err
	}

	// 0600: the file may carry the API auth token.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

var validLocales = map[string]bool{"auto": true, "zh": true, "en": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if !validLocales[strings.ToLower(c.Locale)] {
		errs = append(errs, ValidationError{
			Field:   "locale",
			Message: fmt.Sprintf("invalid locale '%s', must be one of: auto, zh, en", c.Locale),
		})
	}

	if u, err := url.Parse(c.App.RepoURL); err != nil || u.Scheme == "" {
		errs = append(errs, ValidationError{
			Field:   "app.repo_url",
			Message: fmt.Sprintf("invalid repository URL '%s'", c.App.RepoURL),
		})
	}

	if filepath.IsAbs(c.App.EntryPoint) || strings.Contains(c.App.EntryPoint, "..") {
		errs = append(errs, ValidationError{
			Field:   "app.entry_point",
			Message: "must be a path relative to the install directory",
		})
	}
	if filepath.IsAbs(c.App.ModelsDir) || strings.Contains(c.App.ModelsDir, "..") {
		errs = append(errs, ValidationError{
			Field:   "app.models_dir",
			Message: "must be a path relative to the install directory",
		})
	}

	if c.Install.StepDelayMS < 0 {
		errs = append(errs, ValidationError{Field: "install.step_delay_ms", Message: "cannot be negative"})
	}
	if c.Install.CloneTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "install.clone_timeout_secs", Message: "cannot be negative"})
	}
	if c.Install.DepsTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "install.deps_timeout_secs", Message: "cannot be negative"})
	}
	if c.Install.MaxRetries < 0 || c.Install.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "install.max_retries",
			Message: fmt.Sprintf("must be between 0 and 10, got %d", c.Install.MaxRetries),
		})
	}
	if c.Install.RetryInitialMS < 0 {
		errs = append(errs, ValidationError{Field: "install.retry_initial_ms", Message: "cannot be negative"})
	}

	if c.Probe.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "probe.timeout_secs", Message: "cannot be negative"})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_rps", Message: "cannot be negative"})
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: trace, debug, info, warn, error, disabled", c.Logging.Level),
		})
	}

	for key, text := range c.Messages {
		if !IsMessageKey(key) {
			errs = append(errs, ValidationError{
				Field:   "messages." + key,
				Message: "unknown message key",
			})
			continue
		}
		if text == "" {
			continue
		}
		if want, got := MessageArgs(key), countVerbs(text); want != got {
			errs = append(errs, ValidationError{
				Field:   "messages." + key,
				Message: fmt.Sprintf("expects %d format verbs, got %d", want, got),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	if c.Messages != nil {
		out.Messages = make(map[string]string, len(c.Messages))
		for k, v := range c.Messages {
			out.Messages[k] = v
		}
	}
	return &out
}

// =============================================================================
// SHARED INSTANCE
// =============================================================================

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// Global returns the configuration installed by SetGlobal, or the defaults.
func Global() *Config {
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	if globalConfig == nil {
		return Default()
	}
	return globalConfig
}

// SetGlobal installs cfg as the shared configuration. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the shared configuration.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
}
