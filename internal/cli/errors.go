// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/launcher"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the server rejected the auth token
	ExitAuthError = 4
	// ExitNetworkError indicates the server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates an installation or entry point was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInstallFailed indicates the installation run ended in error
	ExitInstallFailed = 9
	// ExitConflictError indicates another run is active or none is
	ExitConflictError = 10
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ConfigError wraps a failure to load or apply the configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// InstallFailedError reports a run that ended in the error step.
type InstallFailedError struct {
	RunID   string
	Message string
}

func (e *InstallFailedError) Error() string {
	return fmt.Sprintf("installation failed: %s", e.Message)
}

// RemoteError is a non-2xx answer from the installer server.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w as text or, in JSON mode, as an error
// response.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		NewJSONErrorResponse("", err).Write(w)
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error:"), err.Error())
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}

	var failed *InstallFailedError
	if errors.As(err, &failed) {
		return ExitInstallFailed
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		switch remote.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ExitAuthError
		case http.StatusNotFound:
			return ExitNotFoundError
		case http.StatusConflict:
			return ExitConflictError
		case http.StatusBadRequest:
			return ExitUsageError
		}
		return ExitGeneralError
	}

	switch {
	case errors.Is(err, installer.ErrInvalidPath),
		errors.Is(err, installer.ErrDirectoryNotEmpty),
		errors.Is(err, ErrConfigExists):
		return ExitUsageError
	case errors.Is(err, installer.ErrAlreadyRunning),
		errors.Is(err, installer.ErrNoActiveRun),
		errors.Is(err, installer.ErrRunMismatch):
		return ExitConflictError
	case errors.Is(err, launcher.ErrPathNotFound),
		errors.Is(err, launcher.ErrDirectoryNotFound),
		errors.Is(err, launcher.ErrEntryPointNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	return ExitGeneralError
}
