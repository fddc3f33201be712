// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the installer backend to the desktop GUI over a
// local HTTP API and a Socket.IO push channel.
//
// Endpoints:
//   - GET  /health                    - Liveness and version
//   - POST /api/greet                 - Connectivity check
//   - GET  /api/system                - Host capability report
//   - GET  /api/install/default-path  - Suggested install directory
//   - POST /api/install               - Start an installation (202)
//   - GET  /api/install/progress      - Current progress snapshot
//   - POST /api/install/cancel        - Cancel the active run
//   - GET  /api/install/history       - Recorded runs
//   - POST /api/launch                - Start IndexTTS
//   - POST /api/open                  - Open the install directory
//
// Every response uses the APIResponse envelope. The "/install" Socket.IO
// namespace emits "progress" on connect and on every update, answers
// "get_progress" and accepts "start_install".
//
// Middleware (outermost first): recovery, security headers, request
// logging, per-IP rate limiting, CORS, bearer-token auth.
package server
