// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/jeranaias/indextts-installer/internal/app"
	"github.com/jeranaias/indextts-installer/internal/history"
	"github.com/jeranaias/indextts-installer/internal/probe"
)

// =============================================================================
// GREET / PATH / VERSION
// =============================================================================

func newGreetCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "greet [name]",
		Short: "Check that the installer backend responds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			greeting := svc.Greet(name)
			return st.emit("greet", map[string]string{"greeting": greeting}, func(w io.Writer) {
				fmt.Fprintln(w, greeting)
			})
		},
	}
}

func newPathCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the default installation directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			path := svc.DefaultInstallPath()
			return st.emit("path", map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintln(w, path)
			})
		},
	}
}

func newVersionCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the installer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := map[string]string{
				"version": app.Version,
				"go":      runtime.Version(),
				"os":      runtime.GOOS,
				"arch":    runtime.GOARCH,
			}
			return st.emit("version", data, func(w io.Writer) {
				fmt.Fprintf(w, "indextts-installer %s (%s, %s/%s)\n", app.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			})
		},
	}
}

// =============================================================================
// INFO
// =============================================================================

func newInfoCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the host's installation readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			info, err := svc.SystemInfo(cmd.Context())
			if err != nil {
				return err
			}
			return st.emit("info", info, func(w io.Writer) {
				writeSystemInfo(w, info)
			})
		},
	}
}

func writeSystemInfo(w io.Writer, info *probe.SystemInfo) {
	fmt.Fprintln(w, TitleStyle.Render("System Information"))
	writeField(w, "OS", strings.TrimSpace(info.OS+" "+info.OSVersion))
	writeField(w, "CPU", fmt.Sprintf("%s (%d cores)", info.CPUName, info.CPUCores))
	writeField(w, "Memory", fmt.Sprintf("%s free of %s",
		humanize.IBytes(info.AvailableMemory), humanize.IBytes(info.TotalMemory)))
	writeField(w, "Disk", fmt.Sprintf("%s free of %s",
		humanize.IBytes(info.AvailableDiskSpace), humanize.IBytes(info.TotalDiskSpace)))
	writeField(w, "GPU", strings.Join(info.GPUInfo, ", "))
	writeField(w, "Python", versionOrMissing(info.PythonVersion))
	writeField(w, "Git", versionOrMissing(info.GitVersion))
	if info.CUDAAvailable {
		writeField(w, "CUDA", SuccessStyle.Render("available"))
	} else {
		writeField(w, "CUDA", DimStyle.Render("not available"))
	}
}

func versionOrMissing(v *string) string {
	if v == nil || *v == "" {
		return ErrorStyle.Render("not found")
	}
	return *v
}

// =============================================================================
// LAUNCH / OPEN
// =============================================================================

func newLaunchCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "launch [path]",
		Short: "Start an installed IndexTTS",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			msg, err := svc.Launch(cmd.Context(), pathArg(svc, args))
			if err != nil {
				return err
			}
			return st.emit("launch", map[string]string{"message": msg}, func(w io.Writer) {
				fmt.Fprintln(w, SuccessStyle.Render(msg))
			})
		},
	}
}

func newOpenCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "open [path]",
		Short: "Open the installation directory in the file manager",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			path := pathArg(svc, args)
			if err := svc.OpenInstallDirectory(cmd.Context(), path); err != nil {
				return err
			}
			return st.emit("open", map[string]string{"path": path}, func(w io.Writer) {
				fmt.Fprintf(w, "Opened %s\n", path)
			})
		},
	}
}

// pathArg returns the positional path or the default installation path.
func pathArg(svc *app.Service, args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return svc.DefaultInstallPath()
}

// =============================================================================
// HISTORY
// =============================================================================

func newHistoryCmd(st *state) *cobra.Command {
	var limit string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent installation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cast.ToIntE(limit)
			if err != nil || n < 0 {
				return fmt.Errorf("--limit must be a non-negative integer, got %q", limit)
			}

			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			runs, err := svc.InstallHistory(cmd.Context(), n)
			if err != nil {
				return err
			}
			return st.emit("history", runs, func(w io.Writer) {
				writeHistory(w, runs)
			})
		},
	}
	cmd.Flags().StringVar(&limit, "limit", "20", "Number of runs to show")
	return cmd
}

func writeHistory(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No installation runs recorded."))
		return
	}
	fmt.Fprintln(w, TitleStyle.Render("Installation History"))
	for _, run := range runs {
		var status string
		switch {
		case !run.Finished():
			status = DimStyle.Render("running")
		case run.HasError:
			status = ErrorStyle.Render("failed")
		default:
			status = SuccessStyle.Render("completed")
		}
		fmt.Fprintf(w, "  %s  %-9s %s  %s\n",
			DimStyle.Render(shortID(run.ID)),
			status,
			humanize.Time(run.StartedAt),
			run.InstallPath)
		if run.Finished() {
			line := fmt.Sprintf("took %s", run.Duration().Round(time.Second))
			if run.Message != "" {
				line += ": " + run.Message
			}
			fmt.Fprintf(w, "            %s\n", DimStyle.Render(line))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
