// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import "github.com/jeranaias/indextts-installer/internal/execx"

// Darwin is macOS.
type Darwin struct{}

func (Darwin) Name() string { return "darwin" }

func (Darwin) DisplayInfoCommand() execx.Command {
	return execx.Command{Name: "system_profiler", Args: []string{"SPDisplaysDataType"}}
}

// ParseGPUNames reads the "Chipset Model:" lines of system_profiler.
func (Darwin) ParseGPUNames(output string) []string {
	return valuesAfterPrefix(output, "Chipset Model:")
}

func (Darwin) FileManagerCommand(path string) execx.Command {
	return execx.Command{Name: "open", Args: []string{path}}
}

func (Darwin) PythonCandidates() []string { return []string{"python3", "python"} }

func (Darwin) HomeEnv() string { return "HOME" }
