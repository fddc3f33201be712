// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"strings"

	"github.com/jeranaias/indextts-installer/internal/execx"
)

// Linux covers Linux and the other POSIX desktops.
type Linux struct {
	name string
}

func (l Linux) Name() string {
	if l.name == "" {
		return "linux"
	}
	return l.name
}

func (Linux) DisplayInfoCommand() execx.Command {
	return execx.Command{Name: "lspci"}
}

var lspciClasses = []string{"VGA compatible controller:", "3D controller:", "Display controller:"}

// ParseGPUNames reads lspci lines such as
// "01:00.0 VGA compatible controller: NVIDIA Corporation AD102 [GeForce RTX 4090] (rev a1)".
func (Linux) ParseGPUNames(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		for _, class := range lspciClasses {
			_, name, ok := strings.Cut(line, class)
			if !ok {
				continue
			}
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
			break
		}
	}
	return names
}

func (Linux) FileManagerCommand(path string) execx.Command {
	return execx.Command{Name: "xdg-open", Args: []string{path}}
}

func (Linux) PythonCandidates() []string { return []string{"python3", "python"} }

func (Linux) HomeEnv() string { return "HOME" }
