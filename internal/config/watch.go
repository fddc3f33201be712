// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultWatchDebounce coalesces the burst of events editors emit on save.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// new configuration to onChange. Invalid edits are logged and skipped. Watch
// blocks until ctx is done.
//
// The parent directory is watched rather than the file because editors
// commonly replace the file with a rename.
func Watch(ctx context.Context, path string, debounce time.Duration, logger zerolog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := LoadFromPath(target)
		if err != nil {
			logger.Warn().Err(err).Str("path", target).Msg("config reload rejected")
			return
		}
		logger.Info().Str("path", target).Msg("config reloaded")
		onChange(cfg)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
