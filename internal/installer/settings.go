// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package installer

import (
	"time"

	"github.com/jeranaias/indextts-installer/internal/config"
)

// Settings controls what the pipeline runs and how patiently.
type Settings struct {
	RepoURL          string
	RequirementsFile string
	ModelsDir        string
	Git              string
	Pip              string

	StepDelay    time.Duration
	CloneTimeout time.Duration
	DepsTimeout  time.Duration
	MaxRetries   int
	RetryInitial time.Duration

	Messages *config.Catalog
}

// SettingsFromConfig derives pipeline settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		RepoURL:          cfg.App.RepoURL,
		RequirementsFile: cfg.App.RequirementsFile,
		ModelsDir:        cfg.App.ModelsDir,
		Git:              cfg.Tools.Git,
		Pip:              cfg.Tools.Pip,
		StepDelay:        cfg.Install.StepDelay(),
		CloneTimeout:     cfg.Install.CloneTimeout(),
		DepsTimeout:      cfg.Install.DepsTimeout(),
		MaxRetries:       cfg.Install.MaxRetries,
		RetryInitial:     cfg.Install.RetryInitial(),
		Messages:         cfg.Catalog(),
	}
}

// DefaultSettings returns the settings of a stock configuration.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

func (s Settings) withFallbacks() Settings {
	def := DefaultSettings()
	if s.RepoURL == "" {
		s.RepoURL = def.RepoURL
	}
	if s.RequirementsFile == "" {
		s.RequirementsFile = def.RequirementsFile
	}
	if s.ModelsDir == "" {
		s.ModelsDir = def.ModelsDir
	}
	if s.Git == "" {
		s.Git = def.Git
	}
	if s.Pip == "" {
		s.Pip = def.Pip
	}
	if s.StepDelay < 0 {
		s.StepDelay = 0
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.RetryInitial <= 0 {
		s.RetryInitial = def.RetryInitial
	}
	if s.Messages == nil {
		s.Messages = def.Messages
	}
	return s
}
