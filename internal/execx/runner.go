// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// TYPES
// =============================================================================

// Command describes one external tool invocation.
type Command struct {
	// Name is the executable, resolved on PATH when it has no separator.
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Timeout bounds Run. Zero means only the caller's context applies.
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of Run. It is populated for exit failures
// too, so callers can inspect stdout of a tool that exited non-zero.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external tools.
type Runner interface {
	// Run executes cmd to completion and captures its output.
	Run(ctx context.Context, cmd Command) (Result, error)
	// Start spawns cmd detached from this process and returns its pid.
	// The child is reaped in the background and not tracked further.
	Start(cmd Command) (int, error)
}

// =============================================================================
// EXEC RUNNER
// =============================================================================

// waitDelay bounds how long Run waits for pipes after the process group is
// killed.
const waitDelay = 5 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
}

// NewRunner creates an ExecRunner that logs each invocation.
func NewRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes cmd and classifies failures as ErrToolNotFound, ErrTimeout,
// *ExitError or the caller's context error.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	killTreeOnCancel(c)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	err = classify(ctx, cmd, err, res)

	event := r.logger.Debug()
	if err != nil {
		event = r.logger.Warn().Err(err)
	}
	event.
		Str("tool", cmd.Name).
		Strs("args", cmd.Args).
		Str("dir", cmd.Dir).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("command finished")

	return res, err
}

// Start spawns cmd in its own session or process group with no stdio.
func (r *ExecRunner) Start(cmd Command) (int, error) {
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.SysProcAttr = detachedAttr()

	if err := c.Start(); err != nil {
		return 0, classify(context.Background(), cmd, err, Result{})
	}

	pid := c.Process.Pid
	r.logger.Info().Str("tool", cmd.Name).Strs("args", cmd.Args).Str("dir", cmd.Dir).Int("pid", pid).Msg("process started")

	go func() {
		err := c.Wait()
		r.logger.Debug().Int("pid", pid).AnErr("exit", err).Msg("detached process exited")
	}()
	return pid, nil
}

func classify(ctx context.Context, cmd Command, err error, res Result) error {
	if err == nil {
		return nil
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return fmt.Errorf("%w: %s", ErrToolNotFound, cmd.Name)
	}
	// A configured path that does not exist. A missing Dir fails with "chdir".
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Op != "chdir" && errors.Is(pathErr, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrToolNotFound, cmd.Name)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && cmd.Timeout > 0 {
			return &TimeoutError{Tool: cmd.Name, After: cmd.Timeout}
		}
		return ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Tool: cmd.Name, Code: exitErr.ExitCode(), Stderr: res.Stderr}
	}

	return fmt.Errorf("%s: %w", cmd.Name, err)
}
