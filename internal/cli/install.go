// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/indextts-installer/internal/app"
	"github.com/jeranaias/indextts-installer/internal/installer"
	"github.com/jeranaias/indextts-installer/internal/progress"
	"github.com/jeranaias/indextts-installer/internal/tui"
)

// activePollInterval bounds how long the text follower waits before
// rechecking whether the run is still active.
const activePollInterval = 500 * time.Millisecond

func newInstallCmd(st *state) *cobra.Command {
	var (
		modelType string
		useGPU    bool
		noTUI     bool
	)

	cmd := &cobra.Command{
		Use:   "install [path]",
		Short: "Install IndexTTS into a directory",
		Long: `Clones the IndexTTS repository, installs its Python dependencies and
prepares the models directory. Without a path the default installation
directory is used. An existing clone in the target is resumed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := st.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			req := installer.InstallConfig{
				InstallPath: pathArg(svc, args),
				ModelType:   modelType,
				UseGPU:      useGPU,
			}
			return st.runInstall(cmd.Context(), svc, req, noTUI)
		},
	}

	cmd.Flags().StringVar(&modelType, "model-type", "", "Model variant to record for this run")
	cmd.Flags().BoolVar(&useGPU, "gpu", false, "Record that the GPU build is wanted")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print plain progress lines instead of the terminal UI")
	return cmd
}

// runInstall starts one run and follows it to its final step.
func (st *state) runInstall(ctx context.Context, svc *app.Service, req installer.InstallConfig, noTUI bool) error {
	updates, stop := svc.SubscribeProgress(64)
	defer stop()

	started, err := svc.StartInstallation(ctx, req)
	if err != nil {
		return err
	}
	cancel := func() {
		if err := svc.CancelInstallation(started.RunID); err != nil && !errors.Is(err, installer.ErrNoActiveRun) {
			fmt.Fprintln(st.opts.Err, DimStyle.Render("cancel: "+err.Error()))
		}
	}

	if st.interactive() && !noTUI {
		m := tui.New(updates, started.RunID, req.InstallPath, cancel).
			WithInitial(svc.InstallationProgress())
		res, runErr := tui.Run(ctx, m)
		if runErr != nil {
			fmt.Fprintln(st.opts.Err, ErrorStyle.Render(runErr.Error()))
		}
		if runErr != nil || !res.Done() {
			cancel()
		}
	} else {
		st.followText(ctx, svc, updates, started.RunID, cancel)
	}

	svc.WaitInstallation()
	final := svc.InstallationProgress()

	if st.jsonOut {
		resp := NewJSONResponse("install", final)
		resp.Success = !final.HasError
		if final.HasError {
			msg := final.Message
			resp.Error = &msg
		}
		if err := resp.Write(st.opts.Out); err != nil {
			return err
		}
	}
	if final.HasError {
		return &InstallFailedError{RunID: started.RunID, Message: final.Message}
	}
	return nil
}

// followText prints one line per update of runID until the run ends.
func (st *state) followText(ctx context.Context, svc *app.Service, updates <-chan progress.Snapshot, runID string, cancel func()) {
	out := st.opts.Out
	if st.jsonOut {
		out = io.Discard
	}
	ticker := time.NewTicker(activePollInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return
			}
			if s.RunID != "" && s.RunID != runID {
				continue
			}
			writeProgressLine(out, s)
			if s.Terminal() {
				return
			}

		case <-ticker.C:
			if id, active := svc.ActiveRun(); !active || id != runID {
				drainUpdates(out, updates, runID)
				return
			}

		case <-done:
			cancel()
			// Keep reading until the cancelled run reports its final step.
			done = nil
		}
	}
}

// drainUpdates prints the updates of runID already buffered.
func drainUpdates(w io.Writer, updates <-chan progress.Snapshot, runID string) {
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return
			}
			if s.RunID == "" || s.RunID == runID {
				writeProgressLine(w, s)
			}
		default:
			return
		}
	}
}

func writeProgressLine(w io.Writer, s progress.Snapshot) {
	line := fmt.Sprintf("[%3d%%] %s", s.Progress, s.Message)
	switch {
	case s.HasError:
		line = ErrorStyle.Render(line)
	case s.IsComplete:
		line = SuccessStyle.Render(line)
	}
	fmt.Fprintln(w, line)
}
