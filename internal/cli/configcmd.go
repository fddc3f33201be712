// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/indextts-installer/internal/config"
)

// ErrConfigExists is returned by "config init" when the file is present.
var ErrConfigExists = errors.New("config file already exists (use --force to overwrite)")

func newConfigCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the installer configuration",
	}
	cmd.AddCommand(newConfigInitCmd(st), newConfigShowCmd(st))
	return cmd
}

func newConfigInitCmd(st *state) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(st.cfgPath); err == nil && !force {
				return fmt.Errorf("%w: %s", ErrConfigExists, st.cfgPath)
			}
			if err := config.Save(config.Default(), st.cfgPath); err != nil {
				return &ConfigError{Err: err}
			}
			return st.emit("config init", map[string]string{"path": st.cfgPath}, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote %s\n", st.cfgPath)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after the config file, .env and environment
overrides are applied. The API auth token is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Global().Clone()
			if cfg.Server.AuthToken != "" {
				cfg.Server.AuthToken = "********"
			}
			if st.jsonOut {
				return NewJSONResponse("config show", cfg).Write(st.opts.Out)
			}
			fmt.Fprintln(st.opts.Out, DimStyle.Render("# "+st.cfgPath))
			return config.Encode(st.opts.Out, cfg)
		},
	}
}
