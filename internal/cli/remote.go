// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/jeranaias/indextts-installer/internal/progress"
	"github.com/jeranaias/indextts-installer/internal/server"
)

const (
	remoteTimeout      = 10 * time.Second
	watchInterval      = time.Second
	watchMaxReconnect  = 30 * time.Second
	remoteErrBodyLimit = 4096
)

// =============================================================================
// CLIENT
// =============================================================================

// apiClient talks to a running "serve" instance.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (st *state) client(base string) *apiClient {
	if base == "" {
		base = "http://" + st.cfg.Server.Addr()
	}
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: st.cfg.Server.AuthToken,
		http:  st.opts.HTTPClient,
	}
}

// do sends body as JSON and decodes the data field of the envelope into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, server.MaxRequestBodySize))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 300 {
			msg := string(raw)
			if len(msg) > remoteErrBodyLimit {
				msg = msg[:remoteErrBodyLimit]
			}
			return &RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(msg)}
		}
		return fmt.Errorf("invalid server response: %w", err)
	}
	if resp.StatusCode >= 300 || !envelope.Success {
		return &RemoteError{Status: resp.StatusCode, Message: envelope.Error}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("invalid server response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) progress(ctx context.Context) (progress.Snapshot, error) {
	var s progress.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/install/progress", nil, &s)
	return s, err
}

func (c *apiClient) health(ctx context.Context) (server.HealthResponse, error) {
	var h server.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *apiClient) cancel(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/api/install/cancel", map[string]string{"run_id": runID}, nil)
}

// =============================================================================
// COMMANDS
// =============================================================================

func newProgressCmd(st *state) *cobra.Command {
	var (
		url   string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progress of the server's installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := st.client(url)
			if !watch {
				s, err := c.progress(cmd.Context())
				if err != nil {
					return err
				}
				return st.emit("progress", s, func(w io.Writer) {
					writeProgressLine(w, s)
				})
			}
			return st.watchProgress(cmd.Context(), c)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (default http://<server.host>:<server.port>)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Follow progress until the run ends")
	return cmd
}

// watchProgress polls until the current run reaches a terminal step.
// Connection failures are retried with backoff.
func (st *state) watchProgress(ctx context.Context, c *apiClient) error {
	var last progress.Snapshot
	printed := false

	for {
		var s progress.Snapshot
		op := func() error {
			var err error
			s, err = c.progress(ctx)
			var remote *RemoteError
			if errors.As(err, &remote) {
				return backoff.Permanent(err)
			}
			return err
		}
		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = watchMaxReconnect
		if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
			return err
		}

		if !printed || s.Step != last.Step || s.Message != last.Message || s.RunID != last.RunID {
			if st.jsonOut {
				if err := NewJSONResponse("progress", s).Write(st.opts.Out); err != nil {
					return err
				}
			} else {
				writeProgressLine(st.opts.Out, s)
			}
			last, printed = s, true
		}
		if s.Terminal() || s.Step == progress.StepIdle && s.RunID == "" {
			if s.HasError {
				return &InstallFailedError{RunID: s.RunID, Message: s.Message}
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(watchInterval):
		}
	}
}

func newCancelCmd(st *state) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "cancel [run-id]",
		Short: "Cancel the server's running installation",
		Long: `Cancels the installation running on the server. Without a run ID the
active run reported by the server's health endpoint is cancelled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := st.client(url)

			runID := ""
			if len(args) > 0 {
				runID = args[0]
			} else {
				h, err := c.health(cmd.Context())
				if err != nil {
					return err
				}
				runID = h.ActiveRun
			}
			if runID == "" {
				return errors.New("no installation is running")
			}

			if err := c.cancel(cmd.Context(), runID); err != nil {
				return err
			}
			return st.emit("cancel", map[string]string{"run_id": runID}, func(w io.Writer) {
				fmt.Fprintf(w, "Cancellation requested for %s\n", runID)
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (default http://<server.host>:<server.port>)")
	return cmd
}
