// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"chatty", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetup_ComponentField(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	closer, err := Setup(Options{Level: "debug", Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log := Component("installer")
	log.Info().Str("step", "cloning").Msg("step published")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "installer", line["component"])
	assert.Equal(t, "cloning", line["step"])
	assert.Equal(t, "step published", line["message"])
}

func TestSetup_LevelFilters(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	_, err := Setup(Options{Level: "warn", Out: &buf})
	require.NoError(t, err)

	log := Component("probe")
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestSetup_File(t *testing.T) {
	restoreGlobals(t)

	path := filepath.Join(t.TempDir(), "logs", "installer.log")
	closer, err := Setup(Options{File: path})
	require.NoError(t, err)

	log := Component("server")
	log.Info().Msg("listening")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"server"`)
}

func TestSetup_InvalidLevel(t *testing.T) {
	restoreGlobals(t)

	_, err := Setup(Options{Level: "chatty"})
	require.Error(t, err)
}
