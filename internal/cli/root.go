// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/indextts-installer/internal/app"
	"github.com/jeranaias/indextts-installer/internal/config"
	"github.com/jeranaias/indextts-installer/internal/logging"
)

// Options carries the I/O and dependencies of one command tree.
type Options struct {
	Out io.Writer
	Err io.Writer
	// LogOut overrides where log lines go. Nil lets logging decide.
	LogOut io.Writer

	// Service overrides the dependencies of the app service.
	Service app.Options
	// HTTPClient is used by the commands that talk to a running server.
	HTTPClient *http.Client
	// Interactive forces the terminal UI on or off. Nil means detect.
	Interactive *bool
}

// state is shared by every command of one tree.
type state struct {
	opts Options

	cfgPath  string
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	closer io.Closer
}

// NewRootCmd builds the command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: remoteTimeout}
	}
	st := &state{opts: opts}

	root := &cobra.Command{
		Use:   "indextts-installer",
		Short: "Install, launch and serve the IndexTTS installer",
		Long: `indextts-installer clones IndexTTS, installs its Python dependencies and
prepares its models directory. It runs the installation directly in the
terminal or serves the local API used by the desktop shell.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  st.setup,
		PersistentPostRunE: st.teardown,
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&st.cfgPath, "config", "", "Path to the config file (default ~/.indextts-installer/config.toml)")
	pflags.StringVar(&st.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	pflags.BoolVar(&st.jsonOut, "json", false, "Print machine-readable JSON")

	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.CompletionOptions.HiddenDefaultCmd = true

	root.AddCommand(
		newServeCmd(st),
		newInstallCmd(st),
		newInfoCmd(st),
		newPathCmd(st),
		newGreetCmd(st),
		newLaunchCmd(st),
		newOpenCmd(st),
		newHistoryCmd(st),
		newProgressCmd(st),
		newCancelCmd(st),
		newConfigCmd(st),
		newVersionCmd(st),
	)
	return root
}

// Execute runs the command tree against os.Args and exits non-zero on
// failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(Options{})
	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}

	jsonMode, _ := root.PersistentFlags().GetBool("json")
	DisplayError(os.Stderr, err, jsonMode)
	stop()
	os.Exit(GetExitCode(err))
}

// setup loads the configuration and installs the logger.
func (st *state) setup(cmd *cobra.Command, _ []string) error {
	if st.cfgPath == "" {
		path, err := config.ConfigPath()
		if err != nil {
			return &ConfigError{Err: err}
		}
		st.cfgPath = path
	}

	cfg, err := config.LoadFromPath(st.cfgPath)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if st.logLevel != "" {
		if _, err := logging.ParseLevel(st.logLevel); err != nil {
			return &ConfigError{Err: err}
		}
		cfg.Logging.Level = st.logLevel
	}

	closer, err := logging.Setup(logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		Out:   st.opts.LogOut,
	})
	if err != nil {
		return &ConfigError{Err: err}
	}

	st.cfg = cfg
	st.closer = closer
	config.SetGlobal(cfg)
	return nil
}

func (st *state) teardown(*cobra.Command, []string) error {
	if st.closer != nil {
		return st.closer.Close()
	}
	return nil
}

// service builds the app service for the loaded configuration.
func (st *state) service() (*app.Service, error) {
	svc, err := app.New(st.cfg, st.opts.Service)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize installer: %w", err)
	}
	return svc, nil
}
