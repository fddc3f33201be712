// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package execx

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrToolNotFound means the executable could not be located.
	ErrToolNotFound = errors.New("executable not found")

	// ErrTimeout matches any *TimeoutError.
	ErrTimeout = errors.New("command timed out")
)

// TimeoutError reports a command killed by its own deadline.
type TimeoutError struct {
	Tool  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Tool, e.After)
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.Code, msg)
}

// transientPatterns are lowercase stderr fragments of network failures worth
// retrying.
var transientPatterns = []string{
	"could not resolve host",
	"temporary failure in name resolution",
	"connection timed out",
	"connection reset",
	"connection refused",
	"early eof",
	"the remote end hung up unexpectedly",
	"rpc failed",
	"tls handshake timeout",
	"read timed out",
	"remotedisconnected",
	"max retries exceeded",
}

// IsTransient reports whether err is an exit failure whose stderr looks like
// a network hiccup. Missing tools and timeouts are never transient.
func IsTransient(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	stderr := strings.ToLower(exitErr.Stderr)
	for _, p := range transientPatterns {
		if strings.Contains(stderr, p) {
			return true
		}
	}
	return false
}
