// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/indextts-installer/internal/config"
	"github.com/jeranaias/indextts-installer/internal/execx"
	"github.com/jeranaias/indextts-installer/internal/history"
	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/launcher"
	"github.com/jeranaias/indextts-installer/internal/logging"
	"github.com/jeranaias/indextts-installer/internal/platform"
	"github.com/jeranaias/indextts-installer/internal/probe"
	"github.com/jeranaias/indextts-installer/internal/progress"
)

// =============================================================================
// TYPES
// =============================================================================

// Options overrides the collaborators a Service builds by default.
type Options struct {
	Runner   execx.Runner
	Platform platform.Platform
	Host     probe.HostReader
	Logger   *zerolog.Logger

	// Getenv reads environment variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// Started acknowledges a new installation run.
type Started struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the installer backend: every operation the GUI, the HTTP API
// and the CLI expose goes through it.
type Service struct {
	runner   execx.Runner
	platform platform.Platform
	host     probe.HostReader
	getenv   func(string) string
	logger   zerolog.Logger

	tracker *progress.Tracker
	orch    *installer.Orchestrator
	history *history.Store

	mu  sync.RWMutex
	cfg *config.Config
}

// New builds a Service from cfg. A history database that cannot be opened
// disables history instead of failing.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	s := &Service{
		platform: opts.Platform,
		host:     opts.Host,
		getenv:   opts.Getenv,
		cfg:      cfg.Clone(),
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	} else {
		s.logger = logging.Component("app")
	}
	if s.platform == nil {
		s.platform = platform.Current()
	}
	if s.host == nil {
		s.host = probe.GopsutilReader{}
	}
	if s.getenv == nil {
		s.getenv = os.Getenv
	}
	s.runner = opts.Runner
	if s.runner == nil {
		s.runner = execx.NewRunner(s.logger.With().Str("component", "exec").Logger())
	}

	catalog := cfg.Catalog()
	s.tracker = progress.NewTracker(catalog.Text(config.MsgReady))
	s.orch = installer.New(s.runner, s.tracker, installer.SettingsFromConfig(cfg)).
		WithLogger(s.logger.With().Str("component", "installer").Logger())

	if cfg.History.Enabled {
		if err := s.openHistory(cfg); err != nil {
			s.logger.Warn().Err(err).Msg("install history disabled")
		}
	}

	return s, nil
}

func (s *Service) openHistory(cfg *config.Config) error {
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	s.history = store
	s.orch.WithRecorder(store)
	return nil
}

// Config returns a copy of the active configuration.
func (s *Service) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// ApplyConfig switches to cfg for subsequent operations. A running install
// keeps the settings it started with.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg.Clone()
	s.mu.Unlock()
	s.orch.UpdateSettings(installer.SettingsFromConfig(cfg))
}

// Greet returns the connectivity greeting.
func (s *Service) Greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}

// DefaultInstallPath returns <home>/Documents/<app name>, or the configured
// fallback when the home variable is unset.
func (s *Service) DefaultInstallPath() string {
	cfg := s.Config()
	home := s.getenv(s.platform.HomeEnv())
	if home == "" {
		return cfg.App.FallbackInstallPath
	}
	return filepath.Join(home, "Documents", cfg.App.Name)
}

// SystemInfo probes the host.
func (s *Service) SystemInfo(ctx context.Context) (*probe.SystemInfo, error) {
	cfg := s.Config()
	return probe.NewProber(s.runner, s.platform).
		WithHost(s.host).
		WithTimeout(cfg.Probe.Timeout()).
		WithGit(cfg.Tools.Git).
		WithLogger(s.logger.With().Str("component", "probe").Logger()).
		SystemInfo(ctx)
}

// StartInstallation begins a background install.
func (s *Service) StartInstallation(ctx context.Context, req installer.InstallConfig) (*Started, error) {
	runID, err := s.orch.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Started{RunID: runID, Message: s.Config().Catalog().Text(config.MsgStarted)}, nil
}

// InstallationProgress returns the latest progress snapshot.
func (s *Service) InstallationProgress() progress.Snapshot {
	return s.orch.Progress()
}

// CancelInstallation cancels the run with runID.
func (s *Service) CancelInstallation(runID string) error {
	return s.orch.Cancel(runID)
}

// ActiveRun returns the running installation's ID.
func (s *Service) ActiveRun() (string, bool) {
	return s.orch.ActiveRun()
}

// WaitInstallation blocks until no install is running.
func (s *Service) WaitInstallation() {
	s.orch.Wait()
}

// SubscribeProgress streams progress updates until the returned stop is
// called.
func (s *Service) SubscribeProgress(buffer int) (<-chan progress.Snapshot, func()) {
	return s.tracker.Subscribe(buffer)
}

// InstallHistory returns recent runs, newest first. It is empty when
// history is disabled.
func (s *Service) InstallHistory(ctx context.Context, limit int) ([]history.Run, error) {
	if s.history == nil {
		return []history.Run{}, nil
	}
	return s.history.List(ctx, limit)
}

// Launch starts the installed application.
func (s *Service) Launch(ctx context.Context, installPath string) (string, error) {
	return s.launcher().Launch(ctx, installPath)
}

// OpenInstallDirectory opens installPath in the file manager.
func (s *Service) OpenInstallDirectory(ctx context.Context, installPath string) error {
	return s.launcher().OpenDirectory(ctx, installPath)
}

func (s *Service) launcher() *launcher.Launcher {
	cfg := s.Config()
	return launcher.NewLauncher(s.runner, s.platform).
		WithEntryPoint(cfg.App.EntryPoint).
		WithAppName(cfg.App.Name).
		WithPython(cfg.Tools.Python).
		WithLogger(s.logger.With().Str("component", "launcher").Logger())
}

// Close waits for an active install to finish and releases the history
// database.
func (s *Service) Close() error {
	s.orch.Wait()
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}
