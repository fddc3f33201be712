// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package execx runs the external tools the installer depends on (git, pip,
// python, nvidia-smi and the platform probes).
//
// Every invocation goes through the Runner interface so the probe, the
// installation pipeline and the launcher can be tested with fakes.
//
// # Error Kinds
//
//   - ErrToolNotFound: the executable is not on PATH
//   - ErrTimeout / *TimeoutError: the command hit its own deadline
//   - *ExitError: the command ran and exited non-zero; carries stderr
//
// IsTransient picks out exit failures that look like network trouble, and
// RunWithRetry retries those with exponential backoff.
//
// # Usage
//
//	runner := execx.NewRunner(logging.Component("exec"))
//	res, err := runner.Run(ctx, execx.Command{Name: "git", Args: []string{"--version"}, Timeout: 10 * time.Second})
package execx
