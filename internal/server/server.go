// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/jeranaias/indextts-installer/internal/app"
	"github.com/jeranaias/indextts-installer/internal/config"
	"github.com/jeranaias/indextts-installer/internal/history"
	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/launcher"
	"github.com/jeranaias/indextts-installer/internal/probe"
	"github.com/jeranaias/indextts-installer/internal/progress"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	readTimeout  = 30 * time.Second
	writeTimeout = 2 * time.Minute
	idleTimeout  = 2 * time.Minute
)

// ============================================================================
// BACKEND
// ============================================================================

// Backend is the installer service the API exposes. *app.Service
// implements it.
type Backend interface {
	Greet(name string) string
	DefaultInstallPath() string
	SystemInfo(ctx context.Context) (*probe.SystemInfo, error)
	StartInstallation(ctx context.Context, req installer.InstallConfig) (*app.Started, error)
	InstallationProgress() progress.Snapshot
	CancelInstallation(runID string) error
	ActiveRun() (string, bool)
	InstallHistory(ctx context.Context, limit int) ([]history.Run, error)
	Launch(ctx context.Context, installPath string) (string, error)
	OpenInstallDirectory(ctx context.Context, installPath string) error
	SubscribeProgress(buffer int) (<-chan progress.Snapshot, func())
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the local HTTP API and Socket.IO endpoint for the installer GUI.
type Server struct {
	backend Backend
	cfg     config.ServerConfig
	logger  zerolog.Logger

	router  *http.ServeMux
	events  *EventHub
	limiter *RateLimiter
	started time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server for backend.
func New(backend Backend, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	s := &Server{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		router:  http.NewServeMux(),
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		started: time.Now(),
	}
	s.events = NewEventHub(backend, cfg.AuthToken, logger.With().Str("component", "socket").Logger())
	s.setupRoutes()
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("POST /api/greet", s.handleGreet)
	s.router.HandleFunc("GET /api/system", s.handleSystemInfo)

	s.router.HandleFunc("GET /api/install/default-path", s.handleDefaultPath)
	s.router.HandleFunc("POST /api/install", s.handleStartInstall)
	s.router.HandleFunc("GET /api/install/progress", s.handleProgress)
	s.router.HandleFunc("POST /api/install/cancel", s.handleCancel)
	s.router.HandleFunc("GET /api/install/history", s.handleHistory)

	s.router.HandleFunc("POST /api/launch", s.handleLaunch)
	s.router.HandleFunc("POST /api/open", s.handleOpen)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	cors := CORSMiddleware(DefaultCORSConfig(s.cfg.AllowedOrigins))

	api := Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
		cors,
		AuthMiddleware(s.cfg.AuthToken, s.logger),
	)(s.router)

	root := http.NewServeMux()
	// Socket.IO authenticates in its own namespace middleware.
	root.Handle("/socket.io/", Chain(RecoveryMiddleware(s.logger), cors)(s.events.Handler()))
	root.Handle("/", api)
	return root
}

// ============================================================================
// TYPES
// ============================================================================

// APIResponse is the envelope of every API response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	SocketClients int64  `json:"socket_clients"`
	ActiveRun     string `json:"active_run,omitempty"`
}

type greetRequest struct {
	Name string `json:"name"`
}

type pathRequest struct {
	InstallPath string `json:"install_path"`
}

type cancelRequest struct {
	RunID string `json:"run_id"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:        "ok",
		Version:       app.Version,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		SocketClients: s.events.Clients(),
	}
	if id, ok := s.backend.ActiveRun(); ok {
		health.ActiveRun = id
	}
	writeData(w, http.StatusOK, "", health)
}

func (s *Server) handleGreet(w http.ResponseWriter, r *http.Request) {
	var req greetRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeData(w, http.StatusOK, "", map[string]string{"greeting": s.backend.Greet(req.Name)})
}

func (s *Server) handleDefaultPath(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", map[string]string{"path": s.backend.DefaultInstallPath()})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.backend.SystemInfo(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", info)
}

func (s *Server) handleStartInstall(w http.ResponseWriter, r *http.Request) {
	var req installer.InstallConfig
	if !s.decode(w, r, &req) {
		return
	}
	started, err := s.backend.StartInstallation(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, started.Message, map[string]string{"run_id": started.RunID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", s.backend.InstallationProgress())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.backend.CancelInstallation(req.RunID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Cancellation requested", nil)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.backend.InstallHistory(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", runs)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.backend.Launch(r.Context(), req.InstallPath)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msg, nil)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.backend.OpenInstallDirectory(r.Context(), req.InstallPath); err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", nil)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Str("version", app.Version).Bool("auth", s.cfg.AuthToken != "").Msg("server listening")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the Socket.IO server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("server shutting down")

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.Close()
	return err
}

// Close releases background resources without touching the listener.
func (s *Server) Close() {
	s.events.Close()
	s.limiter.Close()
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body into v. An empty body leaves v zeroed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid request body")
	writeError(w, http.StatusBadRequest, "Invalid request format")
	return false
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, installer.ErrAlreadyRunning),
		errors.Is(err, installer.ErrNoActiveRun),
		errors.Is(err, installer.ErrRunMismatch):
		return http.StatusConflict
	case errors.Is(err, installer.ErrInvalidPath),
		errors.Is(err, installer.ErrDirectoryNotEmpty):
		return http.StatusBadRequest
	case errors.Is(err, launcher.ErrPathNotFound),
		errors.Is(err, launcher.ErrDirectoryNotFound),
		errors.Is(err, launcher.ErrEntryPointNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIResponse{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIResponse{Success: false, Error: strings.TrimSpace(message)})
}
