// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"runtime"
	"strings"

	"github.com/jeranaias/indextts-installer/internal/execx"
)

// UnknownGPU is reported when no display adapter could be parsed.
const UnknownGPU = "Unknown GPU"

// Platform captures the OS-specific commands the installer shells out to.
type Platform interface {
	// Name is the GOOS value this implementation serves.
	Name() string
	// DisplayInfoCommand lists display adapters.
	DisplayInfoCommand() execx.Command
	// ParseGPUNames extracts adapter names from DisplayInfoCommand output,
	// in order. It returns nil when nothing matches.
	ParseGPUNames(output string) []string
	// FileManagerCommand opens path in the desktop file browser.
	FileManagerCommand(path string) execx.Command
	// PythonCandidates are interpreter names tried in order.
	PythonCandidates() []string
	// HomeEnv is the environment variable holding the user's home.
	HomeEnv() string
}

// Current returns the implementation for the running OS.
func Current() Platform {
	return For(runtime.GOOS)
}

// For returns the implementation for goos. Unknown systems get the Linux
// behavior, which only assumes POSIX tools.
func For(goos string) Platform {
	switch goos {
	case "darwin":
		return Darwin{}
	case "windows":
		return Windows{}
	default:
		return Linux{name: goos}
	}
}

// valuesAfterPrefix returns, for each line whose trimmed form starts with
// prefix, the trimmed text after the first ':'.
func valuesAfterPrefix(output, prefix string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		_, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			names = append(names, value)
		}
	}
	return names
}
