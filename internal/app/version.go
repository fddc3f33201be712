// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

// Version is the installer backend version. Release builds override it with
// -ldflags "-X github.com/jeranaias/indextts-installer/internal/app.Version=...".
var Version = "0.1.0-dev"
