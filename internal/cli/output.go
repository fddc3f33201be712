// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the envelope printed by every command in --json mode.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write prints the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// emit prints data as JSON in --json mode and calls text otherwise.
func (st *state) emit(command string, data any, text func(io.Writer)) error {
	if st.jsonOut {
		return NewJSONResponse(command, data).Write(st.opts.Out)
	}
	text(st.opts.Out)
	return nil
}

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// interactive reports whether the terminal UI should drive an install.
func (st *state) interactive() bool {
	if st.opts.Interactive != nil {
		return *st.opts.Interactive
	}
	return !st.jsonOut && IsTTY() && IsStdoutTTY()
}

var (
	colorsEnabled     bool
	colorsEnabledOnce sync.Once
)

// ColorsEnabled reports whether colored output should be used. NO_COLOR
// wins, then FORCE_COLOR, then stdout TTY detection.
func ColorsEnabled() bool {
	colorsEnabledOnce.Do(func() {
		switch {
		case os.Getenv("NO_COLOR") != "":
			colorsEnabled = false
		case os.Getenv("FORCE_COLOR") != "":
			colorsEnabled = true
		default:
			colorsEnabled = IsStdoutTTY()
		}
	})
	return colorsEnabled
}

// GetColorProfile returns the termenv profile for the current output.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}
