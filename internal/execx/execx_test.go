// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package execx

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// =============================================================================
// EXEC RUNNER
// =============================================================================

func TestExecRunner_Success(t *testing.T) {
	requireShell(t)
	r := NewRunner(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo Python 3.11.4"}})
	require.NoError(t, err)
	assert.Equal(t, "Python 3.11.4\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunner_WorkingDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := NewRunner(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "pwd -P"}, Dir: dir})
	require.NoError(t, err)

	resolved, err := exec.Command("sh", "-c", "cd "+dir+" && pwd -P").Output()
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(resolved)), strings.TrimSpace(res.Stdout))
}

func TestExecRunner_ExitError(t *testing.T) {
	requireShell(t)
	r := NewRunner(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo partial; echo 'package X not found' >&2; exit 3"}})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "package X not found\n", exitErr.Stderr)
	assert.Equal(t, "partial\n", res.Stdout, "stdout is kept on exit failure")
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunner_ToolNotFound(t *testing.T) {
	r := NewRunner(zerolog.Nop())

	_, err := r.Run(context.Background(), Command{Name: "indextts-no-such-tool-4242"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.False(t, IsTransient(err))
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := NewRunner(zerolog.Nop())

	start := time.Now()
	res, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & echo $!; wait"},
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Contains(t, err.Error(), "timed out after 200ms")

	child, convErr := strconv.Atoi(strings.TrimSpace(res.Stdout))
	require.NoError(t, convErr, "stdout: %q", res.Stdout)
	assert.Eventually(t, func() bool { return !processAlive(child) }, 2*time.Second, 20*time.Millisecond,
		"background child %d survived the timeout", child)
}

func TestExecRunner_CallerCancel(t *testing.T) {
	requireShell(t)
	r := NewRunner(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	res, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 30 & echo $!; wait"}, Timeout: time.Minute})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)

	child, convErr := strconv.Atoi(strings.TrimSpace(res.Stdout))
	require.NoError(t, convErr, "stdout: %q", res.Stdout)
	assert.Eventually(t, func() bool { return !processAlive(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestExecRunner_MissingAbsolutePath(t *testing.T) {
	r := NewRunner(zerolog.Nop())

	_, err := r.Run(context.Background(), Command{Name: filepath.Join(t.TempDir(), "venv", "bin", "python")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestExecRunner_MissingDirIsNotToolNotFound(t *testing.T) {
	requireShell(t)
	r := NewRunner(zerolog.Nop())

	_, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "true"}, Dir: filepath.Join(t.TempDir(), "gone")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrToolNotFound)
}

func TestExecRunner_StartDetached(t *testing.T) {
	requireShell(t)
	r := NewRunner(zerolog.Nop())

	pid, err := r.Start(Command{Name: "sh", Args: []string{"-c", "sleep 1"}, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.True(t, processAlive(pid))
}

func TestExecRunner_StartToolNotFound(t *testing.T) {
	r := NewRunner(zerolog.Nop())

	_, err := r.Start(Command{Name: "indextts-no-such-tool-4242"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dns", &ExitError{Tool: "git", Code: 128, Stderr: "fatal: unable to access 'https://github.com/': Could not resolve host: github.com"}, true},
		{"reset", &ExitError{Tool: "git", Code: 128, Stderr: "error: RPC failed; curl 56 Connection reset by peer"}, true},
		{"pip network", &ExitError{Tool: "pip", Code: 1, Stderr: "WARNING: Retrying ... Read timed out."}, true},
		{"missing package", &ExitError{Tool: "pip", Code: 1, Stderr: "ERROR: package X not found"}, false},
		{"auth", &ExitError{Tool: "git", Code: 128, Stderr: "fatal: Authentication failed"}, false},
		{"not found", ErrToolNotFound, false},
		{"timeout", &TimeoutError{Tool: "git", After: time.Second}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "pip exited with status 1: boom", (&ExitError{Tool: "pip", Code: 1, Stderr: "boom\n"}).Error())
	assert.Equal(t, "git exited with status 128", (&ExitError{Tool: "git", Code: 128}).Error())
	assert.Equal(t, "git timed out after 2s", (&TimeoutError{Tool: "git", After: 2 * time.Second}).Error())
}

func TestCommandString(t *testing.T) {
	cmd := Command{Name: "git", Args: []string{"clone", "https://example.com/r.git", "/tmp/app"}}
	assert.Equal(t, "git clone https://example.com/r.git /tmp/app", cmd.String())
	assert.Equal(t, "nvidia-smi", Command{Name: "nvidia-smi"}.String())
}

// =============================================================================
// RETRY
// =============================================================================

type scriptedRunner struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) {
		return Result{}, s.errs[i]
	}
	return Result{Stdout: "ok"}, nil
}

func (s *scriptedRunner) Start(cmd Command) (int, error) { return 1, nil }

func TestRunWithRetry_RecoversFromTransient(t *testing.T) {
	transient := &ExitError{Tool: "git", Code: 128, Stderr: "Could not resolve host: github.com"}
	r := &scriptedRunner{errs: []error{transient, transient}}

	var attempts []int
	res, err := RunWithRetry(context.Background(), r, Command{Name: "git"}, RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		OnRetry:         func(attempt int, err error, wait time.Duration) { attempts = append(attempts, attempt) },
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)
	assert.Equal(t, 3, r.calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRunWithRetry_StopsOnPermanent(t *testing.T) {
	permanent := &ExitError{Tool: "pip", Code: 1, Stderr: "ERROR: package X not found"}
	r := &scriptedRunner{errs: []error{permanent}}

	_, err := RunWithRetry(context.Background(), r, Command{Name: "pip"}, RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, r.calls)
}

func TestRunWithRetry_GivesUpAfterMax(t *testing.T) {
	transient := &ExitError{Tool: "git", Code: 128, Stderr: "Connection timed out"}
	r := &scriptedRunner{errs: []error{transient, transient, transient, transient}}

	_, err := RunWithRetry(context.Background(), r, Command{Name: "git"}, RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, r.calls)
}

func TestRunWithRetry_ZeroRetries(t *testing.T) {
	transient := &ExitError{Tool: "git", Code: 128, Stderr: "Connection timed out"}
	r := &scriptedRunner{errs: []error{transient}}

	_, err := RunWithRetry(context.Background(), r, Command{Name: "git"}, RetryPolicy{})
	require.Error(t, err)
	assert.Equal(t, 1, r.calls)
}
