// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/indextts-installer/internal/config"
	"github.com/jeranaias/indextts-installer/internal/execx"
	"github.com/jeranaias/indextts-installer/internal/history"
	"github.com/jeranaias/indextts-installer/internal/progress"
	"github.com/jeranaias/indextts-installer/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidPath is returned for an empty or relative install path.
	ErrInvalidPath = errors.New("install path must be absolute")

	// ErrAlreadyRunning is returned when Start is called during a run.
	ErrAlreadyRunning = errors.New("an installation is already running")

	// ErrDirectoryNotEmpty is returned when the target holds files that are
	// not an IndexTTS checkout.
	ErrDirectoryNotEmpty = errors.New("install directory is not empty")

	// ErrNoActiveRun is returned by Cancel when nothing is running.
	ErrNoActiveRun = errors.New("no installation is running")

	// ErrRunMismatch is returned by Cancel for a stale run ID.
	ErrRunMismatch = errors.New("run id does not match the active installation")
)

// =============================================================================
// TYPES
// =============================================================================

// InstallConfig is the caller's install request. ModelType and UseGPU are
// recorded but do not change what gets installed.
type InstallConfig struct {
	InstallPath string `json:"install_path"`
	ModelType   string `json:"model_type"`
	UseGPU      bool   `json:"use_gpu"`
}

// RunRecorder persists run start and outcome.
type RunRecorder interface {
	RecordStart(ctx context.Context, run history.Run) error
	RecordFinish(ctx context.Context, id, step, message string, hasError bool, at time.Time) error
}

// recordTimeout bounds history writes made outside any request.
const recordTimeout = 5 * time.Second

// verifyTimeout bounds the git call that checks an existing checkout.
const verifyTimeout = 30 * time.Second

type run struct {
	id     string
	path   string
	cancel context.CancelFunc
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the install pipeline in the background and publishes
// each step to a Tracker. At most one run is active at a time.
type Orchestrator struct {
	runner   execx.Runner
	tracker  *progress.Tracker
	recorder RunRecorder
	logger   zerolog.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	settings Settings
	active   *run
	wg       sync.WaitGroup
}

// New creates an orchestrator that publishes to tracker.
func New(runner execx.Runner, tracker *progress.Tracker, settings Settings) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		tracker:  tracker,
		logger:   zerolog.Nop(),
		sleep:    sleepContext,
		settings: settings.withFallbacks(),
	}
}

// WithRecorder enables run history.
func (o *Orchestrator) WithRecorder(r RunRecorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithLogger sets the logger.
func (o *Orchestrator) WithLogger(l zerolog.Logger) *Orchestrator {
	o.logger = l
	return o
}

// Settings returns the settings the next run will use.
func (o *Orchestrator) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// UpdateSettings replaces the settings. A run in progress keeps its own.
func (o *Orchestrator) UpdateSettings(s Settings) {
	o.mu.Lock()
	o.settings = s.withFallbacks()
	o.mu.Unlock()
	o.logger.Info().Msg("install settings updated")
}

// Progress returns the latest snapshot.
func (o *Orchestrator) Progress() progress.Snapshot {
	return o.tracker.Snapshot()
}

// ActiveRun returns the ID of the running installation, if any.
func (o *Orchestrator) ActiveRun() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return "", false
	}
	return o.active.id, true
}

// Wait blocks until no run is in progress.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Start validates the request, prepares the directory and launches the
// pipeline. It returns the new run ID without waiting for any step.
func (o *Orchestrator) Start(ctx context.Context, cfg InstallConfig) (string, error) {
	path := strings.TrimSpace(cfg.InstallPath)
	if path == "" || !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, cfg.InstallPath)
	}
	path = filepath.Clean(path)

	o.mu.Lock()
	if o.active != nil {
		id := o.active.id
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	settings := o.settings
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{id: id, path: path, cancel: cancel}
	o.active = r
	o.wg.Add(1)
	o.mu.Unlock()

	// The slot is reserved; filesystem and history work happen unlocked.
	abort := func(err error) (string, error) {
		o.mu.Lock()
		if o.active == r {
			o.active = nil
		}
		o.mu.Unlock()
		cancel()
		o.wg.Done()
		return "", err
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return abort(fmt.Errorf("Failed to create install directory: %w", err))
	}
	resume, err := inspectTarget(path)
	if err != nil {
		return abort(err)
	}

	o.tracker.Publish(progress.Snapshot{
		Step:        progress.StepIdle,
		Message:     settings.Messages.Text(config.MsgStarted),
		RunID:       id,
		InstallPath: path,
	})

	if o.recorder != nil {
		recCtx, recCancel := context.WithTimeout(runCtx, recordTimeout)
		err := o.recorder.RecordStart(recCtx, history.Run{
			ID:          id,
			InstallPath: path,
			RepoURL:     settings.RepoURL,
			ModelType:   cfg.ModelType,
			UseGPU:      cfg.UseGPU,
			Resumed:     resume,
			StartedAt:   time.Now(),
		})
		recCancel()
		if err != nil {
			o.logger.Warn().Err(err).Str("run_id", id).Msg("failed to record run start")
		}
	}

	o.logger.Info().
		Str("run_id", id).
		Str("path", path).
		Str("model_type", cfg.ModelType).
		Bool("use_gpu", cfg.UseGPU).
		Bool("resume", resume).
		Msg("installation started")

	go o.execute(runCtx, r, settings, resume)

	return id, nil
}

// Cancel stops the active run when runID matches it.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil {
		return ErrNoActiveRun
	}
	if runID != o.active.id {
		return fmt.Errorf("%w: %s", ErrRunMismatch, runID)
	}
	o.active.cancel()
	o.logger.Info().Str("run_id", runID).Msg("installation cancel requested")
	return nil
}

// inspectTarget reports whether path already holds a git checkout. Any other
// content is refused. The checkout itself is verified by the pipeline.
func inspectTarget(path string) (resume bool, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("Failed to read install directory: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %s", ErrDirectoryNotEmpty, path)
}

// =============================================================================
// PIPELINE
// =============================================================================

type stage int

const (
	stageNone stage = iota
	stageClone
	stageDeps
	stageModels
)

func (o *Orchestrator) execute(ctx context.Context, r *run, s Settings, resume bool) {
	defer o.wg.Done()
	defer r.cancel()

	final := o.pipeline(ctx, r, s, resume)

	o.mu.Lock()
	if o.active == r {
		o.active = nil
	}
	o.mu.Unlock()

	event := o.logger.Info()
	if final.HasError {
		event = o.logger.Warn()
	}
	event.Str("run_id", r.id).Str("step", final.Step.String()).Str("message", final.Message).Msg("installation finished")

	if o.recorder != nil {
		recCtx, recCancel := context.WithTimeout(context.Background(), recordTimeout)
		defer recCancel()
		if err := o.recorder.RecordFinish(recCtx, r.id, final.Step.String(), final.Message, final.HasError, final.UpdatedAt); err != nil {
			o.logger.Warn().Err(err).Str("run_id", r.id).Msg("failed to record run finish")
		}
	}
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run, s Settings, resume bool) progress.Snapshot {
	msgs := s.Messages

	o.publish(r, progress.StepPreparing, 5, msgs.Text(config.MsgPreparing))
	if err := o.sleep(ctx, s.StepDelay); err != nil {
		return o.fail(r, s, stageNone, err)
	}

	if resume && !o.checkoutComplete(ctx, r, s) {
		if ctx.Err() != nil {
			return o.fail(r, s, stageNone, ctx.Err())
		}
		o.logger.Warn().Str("run_id", r.id).Str("path", r.path).Msg("existing checkout is incomplete, cloning again")
		if err := clearDir(r.path); err != nil {
			return o.fail(r, s, stageClone, err)
		}
		resume = false
	}

	if resume {
		o.publish(r, progress.StepCloned, 40, msgs.Text(config.MsgCloneSkipped))
	} else {
		o.publish(r, progress.StepCloning, 20, msgs.Text(config.MsgCloning))
		if err := o.clone(ctx, r, s); err != nil {
			return o.fail(r, s, stageClone, err)
		}
		o.publish(r, progress.StepCloned, 40, msgs.Text(config.MsgCloned))
	}
	if err := o.sleep(ctx, s.StepDelay); err != nil {
		return o.fail(r, s, stageNone, err)
	}

	o.publish(r, progress.StepDependencies, 60, msgs.Text(config.MsgDependencies))
	if err := o.installDependencies(ctx, r, s); err != nil {
		return o.fail(r, s, stageDeps, err)
	}
	o.publish(r, progress.StepDepsInstalled, 80, msgs.Text(config.MsgDepsInstalled))
	if err := o.sleep(ctx, s.StepDelay); err != nil {
		return o.fail(r, s, stageNone, err)
	}

	o.publish(r, progress.StepModels, 90, msgs.Text(config.MsgModels))
	if err := os.MkdirAll(filepath.Join(r.path, s.ModelsDir), 0755); err != nil {
		return o.fail(r, s, stageModels, err)
	}
	if err := o.sleep(ctx, s.StepDelay); err != nil {
		return o.fail(r, s, stageNone, err)
	}

	snap := progress.Snapshot{
		Step:        progress.StepCompleted,
		Progress:    100,
		Message:     msgs.Text(config.MsgCompleted),
		IsComplete:  true,
		RunID:       r.id,
		InstallPath: r.path,
	}
	o.tracker.Publish(snap)
	return o.tracker.Snapshot()
}

func (o *Orchestrator) clone(ctx context.Context, r *run, s Settings) error {
	cmd := execx.Command{
		Name:    s.Git,
		Args:    []string{"clone", s.RepoURL, r.path},
		Timeout: s.CloneTimeout,
	}
	policy := execx.RetryPolicy{
		MaxRetries:      s.MaxRetries,
		InitialInterval: s.RetryInitial,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			o.logger.Warn().Err(err).Str("run_id", r.id).Int("attempt", attempt).Dur("wait", wait).Msg("git clone failed, retrying")
			// git refuses to clone into a non-empty directory.
			if cerr := clearDir(r.path); cerr != nil {
				o.logger.Warn().Err(cerr).Str("path", r.path).Msg("failed to clean partial clone")
			}
		},
	}
	_, err := execx.RunWithRetry(ctx, o.runner, cmd, policy)
	return err
}

// checkoutComplete reports whether the existing clone has a resolvable HEAD
// and a checked out requirements file. A clone killed mid-transfer leaves
// a .git directory that fails one of the two.
func (o *Orchestrator) checkoutComplete(ctx context.Context, r *run, s Settings) bool {
	if _, err := os.Stat(filepath.Join(r.path, s.RequirementsFile)); err != nil {
		return false
	}
	_, err := o.runner.Run(ctx, execx.Command{
		Name:    s.Git,
		Args:    []string{"-C", r.path, "rev-parse", "--verify", "--quiet", "HEAD"},
		Timeout: verifyTimeout,
	})
	if err != nil {
		o.logger.Debug().Err(err).Str("run_id", r.id).Msg("checkout has no valid HEAD")
		return false
	}
	return true
}

func (o *Orchestrator) installDependencies(ctx context.Context, r *run, s Settings) error {
	cmd := execx.Command{
		Name:    s.Pip,
		Args:    []string{"install", "-r", s.RequirementsFile},
		Dir:     r.path,
		Timeout: s.DepsTimeout,
	}
	policy := execx.RetryPolicy{
		MaxRetries:      s.MaxRetries,
		InitialInterval: s.RetryInitial,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			o.logger.Warn().Err(err).Str("run_id", r.id).Int("attempt", attempt).Dur("wait", wait).Msg("pip install failed, retrying")
		},
	}
	_, err := execx.RunWithRetry(ctx, o.runner, cmd, policy)
	return err
}

func (o *Orchestrator) publish(r *run, step progress.Step, pct int, msg string) {
	o.tracker.Publish(progress.Snapshot{
		Step:        step,
		Progress:    pct,
		Message:     msg,
		RunID:       r.id,
		InstallPath: r.path,
	})
}

// fail publishes the error state and returns it.
func (o *Orchestrator) fail(r *run, s Settings, st stage, err error) progress.Snapshot {
	o.tracker.Publish(progress.Snapshot{
		Step:        progress.StepError,
		Progress:    0,
		Message:     failureMessage(s.Messages, st, err),
		HasError:    true,
		RunID:       r.id,
		InstallPath: r.path,
	})
	return o.tracker.Snapshot()
}

func failureMessage(msgs *config.Catalog, st stage, err error) string {
	if errors.Is(err, context.Canceled) {
		return msgs.Text(config.MsgCancelled)
	}
	var timeoutErr *execx.TimeoutError
	if errors.As(err, &timeoutErr) {
		return msgs.Format(config.MsgTimedOut, timeoutErr.Tool, timeoutErr.After)
	}

	var failedKey, spawnKey string
	switch st {
	case stageClone:
		failedKey, spawnKey = config.MsgCloneFailed, config.MsgCloneSpawnFailed
	case stageDeps:
		failedKey, spawnKey = config.MsgPipFailed, config.MsgPipSpawnFailed
	case stageModels:
		return msgs.Format(config.MsgModelsDirFailed, err.Error())
	default:
		return util.TrimOutput(err.Error(), util.MaxOutputRunes)
	}

	var exitErr *execx.ExitError
	if errors.As(err, &exitErr) {
		return msgs.Format(failedKey, util.TrimOutput(exitErr.Stderr, util.MaxOutputRunes))
	}
	return msgs.Format(spawnKey, util.TrimOutput(err.Error(), util.MaxOutputRunes))
}

// clearDir removes the contents of dir but keeps dir itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
