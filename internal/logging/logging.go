// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Options configures the process-wide logger.
type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string
	// File, when set, receives JSON lines instead of stderr.
	File string
	// Out overrides stderr. Used by tests.
	Out io.Writer
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Setup installs the global zerolog logger. Output is a console writer when
// stderr is a terminal and JSON otherwise. The returned closer releases the
// log file, if any.
func Setup(opts Options) (io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	switch {
	case opts.Out != nil:
		out = opts.Out
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	case term.IsTerminal(int(os.Stderr.Fd())):
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	zlog.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return zlog.Logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
