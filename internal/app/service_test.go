// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/indextts-installer/internal/config"
	"github.com/jeranaias/indextts-installer/internal/execx"
	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/platform"
	"github.com/jeranaias/indextts-installer/internal/progress"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// okRunner succeeds for every command and records what was started.
type okRunner struct {
	mu      sync.Mutex
	ran     []execx.Command
	started []execx.Command
}

func (r *okRunner) Run(_ context.Context, cmd execx.Command) (execx.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, cmd)
	if cmd.Name == "git" && len(cmd.Args) > 0 && cmd.Args[0] == "--version" {
		return execx.Result{Stdout: "git version 2.43.0\n"}, nil
	}
	return execx.Result{}, nil
}

func (r *okRunner) Start(cmd execx.Command) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, cmd)
	return 1, nil
}

type staticHost struct{}

func (staticHost) OS(context.Context) (string, string, error) { return "darwin", "14.5", nil }
func (staticHost) CPU(context.Context) (string, int, error) { return "Apple M2", 8, nil }
func (staticHost) Memory(context.Context) (uint64, uint64, error) { return 16 << 30, 8 << 30, nil }
func (staticHost) Disks(context.Context) (uint64, uint64, error) { return 1 << 40, 1 << 39, nil }

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Locale = "en"
	cfg.Install.StepDelayMS = 0
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, runner execx.Runner, vars map[string]string) *Service {
	t.Helper()
	logger := zerolog.Nop()
	svc, err := New(cfg, Options{
		Runner:   runner,
		Platform: platform.For("darwin"),
		Host:     staticHost{},
		Logger:   &logger,
		Getenv:   env(vars),
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestGreet(t *testing.T) {
	svc := newTestService(t, testConfig(t), &okRunner{}, nil)

	tests := []struct {
		name string
		want string
	}{
		{"Ada", "Hello, Ada! You've been greeted from Go!"},
		{"", "Hello, ! You've been greeted from Go!"},
		{"世界", "Hello, 世界! You've been greeted from Go!"},
	}
	for _, tt := range tests {
		if got := svc.Greet(tt.name); got != tt.want {
			t.Errorf("Greet(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDefaultInstallPath(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"home set", map[string]string{"HOME": "/Users/ada"}, filepath.Join("/Users/ada", "Documents", "IndexTTS")},
		{"home unset", nil, "/Users/Shared/IndexTTS"},
		{"home empty", map[string]string{"HOME": ""}, "/Users/Shared/IndexTTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, testConfig(t), &okRunner{}, tt.vars)
			if got := svc.DefaultInstallPath(); got != tt.want {
				t.Errorf("DefaultInstallPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSystemInfo(t *testing.T) {
	svc := newTestService(t, testConfig(t), &okRunner{}, nil)

	info, err := svc.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "darwin", info.OS)
	assert.Equal(t, 8, info.CPUCores)
	assert.Equal(t, []string{platform.UnknownGPU}, info.GPUInfo)
	require.NotNil(t, info.GitVersion)
	assert.Equal(t, "git version 2.43.0", *info.GitVersion)
	assert.True(t, info.CUDAAvailable, "okRunner makes nvidia-smi succeed")
}

func TestInstallationLifecycle(t *testing.T) {
	svc := newTestService(t, testConfig(t), &okRunner{}, nil)

	initial := svc.InstallationProgress()
	assert.Equal(t, progress.StepIdle, initial.Step)
	assert.Equal(t, "Ready to install", initial.Message)
	assert.False(t, initial.IsComplete)
	assert.False(t, initial.HasError)

	path := filepath.Join(t.TempDir(), "IndexTTS")
	started, err := svc.StartInstallation(context.Background(), installer.InstallConfig{InstallPath: path, ModelType: "base"})
	require.NoError(t, err)
	assert.Equal(t, "Installation started", started.Message)
	assert.NotEmpty(t, started.RunID)

	svc.WaitInstallation()

	final := svc.InstallationProgress()
	assert.Equal(t, progress.StepCompleted, final.Step)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, started.RunID, final.RunID)

	runs, err := svc.InstallHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, started.RunID, runs[0].ID)
	assert.Equal(t, "completed", runs[0].FinalStep)
}

func TestStartInstallation_Errors(t *testing.T) {
	svc := newTestService(t, testConfig(t), &okRunner{}, nil)

	_, err := svc.StartInstallation(context.Background(), installer.InstallConfig{InstallPath: "IndexTTS"})
	assert.ErrorIs(t, err, installer.ErrInvalidPath)

	assert.ErrorIs(t, svc.CancelInstallation("nothing"), installer.ErrNoActiveRun)
}

func TestInstallHistory_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = false
	svc := newTestService(t, cfg, &okRunner{}, nil)

	runs, err := svc.InstallHistory(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoFileExists(t, cfg.History.Path)
}

func TestLaunchAndOpen(t *testing.T) {
	runner := &okRunner{}
	cfg := testConfig(t)
	cfg.Tools.Python = "python3"
	svc := newTestService(t, cfg, runner, nil)

	dir := t.TempDir()
	_, err := svc.Launch(context.Background(), dir)
	require.Error(t, err)
	assert.Equal(t, "IndexTTS main.py not found in installation directory", err.Error())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), nil, 0644))
	msg, err := svc.Launch(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "IndexTTS launched successfully", msg)

	require.NoError(t, svc.OpenInstallDirectory(context.Background(), dir))

	_, err = svc.Launch(context.Background(), filepath.Join(dir, "missing"))
	assert.Contains(t, err.Error(), "does not exist")

	require.Len(t, runner.started, 2)
	assert.Equal(t, "python3", runner.started[0].Name)
	assert.Equal(t, "open", runner.started[1].Name)
}

func TestApplyConfig(t *testing.T) {
	svc := newTestService(t, testConfig(t), &okRunner{}, map[string]string{"HOME": "/Users/ada"})

	cfg := testConfig(t)
	cfg.App.Name = "IndexTTS2"
	cfg.App.EntryPoint = "webui.py"
	svc.ApplyConfig(cfg)

	assert.Equal(t, filepath.Join("/Users/ada", "Documents", "IndexTTS2"), svc.DefaultInstallPath())

	_, err := svc.Launch(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, "IndexTTS2 webui.py not found in installation directory", err.Error())
	assert.False(t, errors.Is(err, installer.ErrInvalidPath))
}

func TestSubscribeProgress(t *testing.T) {
	svc := newTestService(t, testConfig(t), &okRunner{}, nil)
	updates, stop := svc.SubscribeProgress(32)
	defer stop()

	_, err := svc.StartInstallation(context.Background(), installer.InstallConfig{InstallPath: t.TempDir()})
	require.NoError(t, err)
	svc.WaitInstallation()

	var last progress.Snapshot
	for len(updates) > 0 {
		last = <-updates
	}
	assert.Equal(t, progress.StepCompleted, last.Step)
}
