// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/zishang520/socket.io/servers/engine/v3"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/progress"
)

// Socket.IO namespace and event names.
const (
	InstallNamespace = "/install"

	EventProgress       = "progress"
	EventGetProgress    = "get_progress"
	EventStartInstall   = "start_install"
	EventInstallStarted = "install_started"
	EventInstallError   = "install_error"
)

// subscriberBuffer is the update backlog before snapshots are dropped.
const subscriberBuffer = 64

// EventHub pushes progress snapshots to Socket.IO clients on the install
// namespace and accepts install requests from them.
type EventHub struct {
	io      *socket.Server
	ns      socket.Namespace
	backend Backend
	token   string
	logger  zerolog.Logger

	clients atomic.Int64

	stop      func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventHub creates the Socket.IO server and starts forwarding progress
// updates from backend.
func NewEventHub(backend Backend, token string, logger zerolog.Logger) *EventHub {
	opts := socket.DefaultServerOptions()
	opts.SetPath("/socket.io")
	opts.SetTransports(types.NewSet(
		engine.Polling,
		engine.WebSocket,
	))

	h := &EventHub{
		io:      socket.NewServer(nil, opts),
		backend: backend,
		token:   token,
		logger:  logger,
		done:    make(chan struct{}),
	}
	h.ns = h.io.Of(InstallNamespace, nil)
	if token != "" {
		h.ns.Use(h.authenticate)
	}
	h.ns.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		h.onConnect(client)
	})

	updates, stop := backend.SubscribeProgress(subscriberBuffer)
	h.stop = stop
	go h.forward(updates)

	return h
}

// Handler serves the Socket.IO transports.
func (h *EventHub) Handler() http.Handler {
	return h.io.ServeHandler(nil)
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int64 {
	return h.clients.Load()
}

// Close stops forwarding and closes the Socket.IO server.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		h.stop()
		<-h.done
		h.io.Close(nil)
	})
}

func (h *EventHub) forward(updates <-chan progress.Snapshot) {
	defer close(h.done)
	for snap := range updates {
		h.ns.Emit(EventProgress, snap)
	}
}

func (h *EventHub) authenticate(client *socket.Socket, next func(*socket.ExtendedError)) {
	auth := cast.ToStringMap(client.Handshake().Auth)
	if ValidateBearerToken(cast.ToString(auth["token"]), h.token) {
		next(nil)
		return
	}
	h.logger.Warn().Str("client", string(client.Id())).Msg("socket auth denied")
	next(socket.NewExtendedError("Unauthorized", ""))
}

func (h *EventHub) onConnect(client *socket.Socket) {
	id := string(client.Id())
	h.clients.Add(1)
	h.logger.Debug().Str("client", id).Msg("socket connected")

	client.Emit(EventProgress, h.backend.InstallationProgress())

	client.On(EventGetProgress, func(...any) {
		client.Emit(EventProgress, h.backend.InstallationProgress())
	})

	client.On(EventStartInstall, func(data ...any) {
		req := installRequestFrom(data)
		started, err := h.backend.StartInstallation(context.Background(), req)
		if err != nil {
			h.logger.Warn().Err(err).Str("client", id).Msg("socket install rejected")
			client.Emit(EventInstallError, map[string]any{"error": err.Error()})
			return
		}
		client.Emit(EventInstallStarted, map[string]any{"run_id": started.RunID, "message": started.Message})
	})

	client.On("disconnect", func(reason ...any) {
		h.clients.Add(-1)
		h.logger.Debug().Str("client", id).Interface("reason", reason).Msg("socket disconnected")
	})
}

// installRequestFrom reads an install request from a Socket.IO payload. The
// payload may be an object, a JSON string or either wrapped in an array.
func installRequestFrom(data []any) installer.InstallConfig {
	if len(data) == 0 {
		return installer.InstallConfig{}
	}
	payload := data[0]
	if arr, ok := payload.([]any); ok && len(arr) > 0 {
		payload = arr[0]
	}

	m, err := cast.ToStringMapE(payload)
	if err != nil {
		return installer.InstallConfig{}
	}
	return installer.InstallConfig{
		InstallPath: cast.ToString(m["install_path"]),
		ModelType:   cast.ToString(m["model_type"]),
		UseGPU:      cast.ToBool(m["use_gpu"]),
	}
}
