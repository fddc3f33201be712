// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package launcher holds the post-install actions: starting IndexTTS and
// opening the install directory in the desktop file manager.
package launcher
