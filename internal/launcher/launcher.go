// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jeranaias/indextts-installer/internal/execx"
	"github.com/jeranaias/indextts-installer/internal/platform"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrPathNotFound is returned by Launch for a missing install path.
	ErrPathNotFound = errors.New("Installation path does not exist")

	// ErrDirectoryNotFound is returned by OpenDirectory for a missing path.
	ErrDirectoryNotFound = errors.New("Installation directory does not exist")

	// ErrEntryPointNotFound matches any EntryPointError.
	ErrEntryPointNotFound = errors.New("entry point not found")
)

// EntryPointError reports a checkout without its entry script.
type EntryPointError struct {
	App        string
	EntryPoint string
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("%s %s not found in installation directory", e.App, e.EntryPoint)
}

func (e *EntryPointError) Is(target error) bool {
	return target == ErrEntryPointNotFound
}

// =============================================================================
// LAUNCHER
// =============================================================================

const (
	defaultEntryPoint = "main.py"
	defaultAppName    = "IndexTTS"
)

// Launcher starts the installed application and opens its directory.
// Started processes are detached and not tracked.
type Launcher struct {
	runner     execx.Runner
	platform   platform.Platform
	entryPoint string
	python     string
	appName    string
	lookPath   func(string) (string, error)
	logger     zerolog.Logger
}

// NewLauncher creates a Launcher for the stock IndexTTS layout.
func NewLauncher(runner execx.Runner, plat platform.Platform) *Launcher {
	return &Launcher{
		runner:     runner,
		platform:   plat,
		entryPoint: defaultEntryPoint,
		appName:    defaultAppName,
		lookPath:   exec.LookPath,
		logger:     zerolog.Nop(),
	}
}

// WithEntryPoint sets the script launched relative to the install path.
func (l *Launcher) WithEntryPoint(entry string) *Launcher {
	if entry != "" {
		l.entryPoint = entry
	}
	return l
}

// WithPython pins the interpreter. Empty means auto-detect.
func (l *Launcher) WithPython(python string) *Launcher {
	l.python = python
	return l
}

// WithAppName sets the name used in messages.
func (l *Launcher) WithAppName(name string) *Launcher {
	if name != "" {
		l.appName = name
	}
	return l
}

// WithLogger sets the logger.
func (l *Launcher) WithLogger(logger zerolog.Logger) *Launcher {
	l.logger = logger
	return l
}

// Launch starts the entry point with the Python interpreter from inside
// installPath and returns the success message.
func (l *Launcher) Launch(ctx context.Context, installPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := os.Stat(installPath); err != nil || installPath == "" {
		return "", ErrPathNotFound
	}
	script := filepath.Join(installPath, l.entryPoint)
	if _, err := os.Stat(script); err != nil {
		return "", &EntryPointError{App: l.appName, EntryPoint: l.entryPoint}
	}

	cmd := execx.Command{
		Name: l.interpreter(),
		Args: []string{l.entryPoint},
		Dir:  installPath,
	}
	pid, err := l.runner.Start(cmd)
	if err != nil {
		return "", fmt.Errorf("Failed to launch %s: %w", l.appName, err)
	}

	l.logger.Info().Str("path", installPath).Str("python", cmd.Name).Int("pid", pid).Msg("application launched")
	return fmt.Sprintf("%s launched successfully", l.appName), nil
}

// OpenDirectory shows installPath in the platform file manager.
func (l *Launcher) OpenDirectory(ctx context.Context, installPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(installPath); err != nil || installPath == "" {
		return ErrDirectoryNotFound
	}

	cmd := l.platform.FileManagerCommand(installPath)
	if _, err := l.runner.Start(cmd); err != nil {
		return fmt.Errorf("Failed to open directory: %w", err)
	}
	l.logger.Info().Str("path", installPath).Str("tool", cmd.Name).Msg("directory opened")
	return nil
}

// interpreter returns the pinned interpreter, else the first platform
// candidate on PATH, else "python".
func (l *Launcher) interpreter() string {
	if l.python != "" {
		return l.python
	}
	for _, candidate := range l.platform.PythonCandidates() {
		if _, err := l.lookPath(candidate); err == nil {
			return candidate
		}
	}
	return "python"
}
