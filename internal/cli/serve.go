// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/indextts-installer/internal/app"
	"github.com/jeranaias/indextts-installer/internal/config"
	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/logging"
	"github.com/jeranaias/indextts-installer/internal/server"
)

// shutdownTimeout bounds the graceful shutdown of the API server.
const shutdownTimeout = 10 * time.Second

func newServeCmd(st *state) *cobra.Command {
	var (
		host    string
		port    int
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local installer API",
		Long: `Serves the HTTP API and Socket.IO progress channel the desktop shell
uses. The config file is watched and installer settings are reloaded
when it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := st.cfg.Server
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return st.serve(cmd.Context(), cfg, !noWatch)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "Listen port (overrides server.port)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the config file on change")
	return cmd
}

// serve runs the API server until ctx is done.
func (st *state) serve(ctx context.Context, cfg config.ServerConfig, watch bool) error {
	logger := logging.Component("serve")

	svc, err := st.service()
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(svc, cfg, logging.Component("server"))

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		srv.Close()
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	fmt.Fprintf(st.opts.Out, "Listening on http://%s\n", ln.Addr())

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if watch {
		go func() {
			if err := config.Watch(watchCtx, st.cfgPath, config.DefaultWatchDebounce, logger, st.reload(svc)); err != nil {
				logger.Warn().Err(err).Msg("config watch stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		srv.Close()
		st.cancelActive(svc)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	st.cancelActive(svc)
	if serveErr := <-errCh; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}

// reload installs a reloaded config as the shared one and hands it to svc.
func (st *state) reload(svc *app.Service) func(*config.Config) {
	return func(cfg *config.Config) {
		config.SetGlobal(cfg)
		svc.ApplyConfig(cfg)
	}
}

// cancelActive stops a run that would otherwise outlive the server.
func (st *state) cancelActive(svc *app.Service) {
	id, ok := svc.ActiveRun()
	if !ok {
		return
	}
	if err := svc.CancelInstallation(id); err != nil && !errors.Is(err, installer.ErrNoActiveRun) {
		logger := logging.Component("serve")
		logger.Warn().Err(err).Str("run_id", id).Msg("failed to cancel run on shutdown")
	}
}
