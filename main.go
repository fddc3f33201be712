// indextts-installer - installs, launches and serves the IndexTTS installer.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/jeranaias/indextts-installer/internal/cli"

func main() {
	cli.Execute()
}
