// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"strings"

	"github.com/jeranaias/indextts-installer/internal/execx"
)

// Windows is Windows 10 and later.
type Windows struct{}

func (Windows) Name() string { return "windows" }

func (Windows) DisplayInfoCommand() execx.Command {
	return execx.Command{Name: "wmic", Args: []string{"path", "win32_VideoController", "get", "name"}}
}

// ParseGPUNames reads wmic's table output: a "Name" header followed by one
// adapter per line.
func (Windows) ParseGPUNames(output string) []string {
	var names []string
	for i, line := range strings.Split(strings.ReplaceAll(output, "\r", ""), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (i == 0 && strings.EqualFold(line, "Name")) {
			continue
		}
		names = append(names, line)
	}
	return names
}

func (Windows) FileManagerCommand(path string) execx.Command {
	return execx.Command{Name: "explorer", Args: []string{path}}
}

// PythonCandidates prefers the py launcher's usual targets; python3 on
// Windows is often the Store stub.
func (Windows) PythonCandidates() []string { return []string{"python", "python3"} }

func (Windows) HomeEnv() string { return "USERPROFILE" }
