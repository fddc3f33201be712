// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULTS & LOADING
// =============================================================================

func TestDefault_MatchesStockInstaller(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://github.com/X-T-E-R/IndexTTS.git", cfg.App.RepoURL)
	assert.Equal(t, "requirements.txt", cfg.App.RequirementsFile)
	assert.Equal(t, "main.py", cfg.App.EntryPoint)
	assert.Equal(t, "checkpoints", cfg.App.ModelsDir)
	assert.Equal(t, "/Users/Shared/IndexTTS", cfg.App.FallbackInstallPath)
	assert.Equal(t, time.Second, cfg.Install.StepDelay())
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, Default().App.RepoURL, cfg.App.RepoURL)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
locale = "en"

[install]
step_delay_ms = 0
max_retries = 5

[server]
port = 9100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, 0, cfg.Install.StepDelayMS, "explicit zero delay must survive defaults")
	assert.Equal(t, 5, cfg.Install.MaxRetries)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "main.py", cfg.App.EntryPoint)
	assert.Equal(t, 900, cfg.Install.CloneTimeoutSecs)
}

func TestLoadFromPath_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[install\nstep_delay_ms = "), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestLoadFromPath_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 70000\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "server.port", verrs[0].Field)
}

func TestLoadFromPath_DotEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INDEXTTS_PIP=pip3\nINDEXTTS_PORT=9200\n"), 0600))

	// Already-set variables win over .env.
	t.Setenv("INDEXTTS_PORT", "9300")
	t.Setenv("INDEXTTS_PIP", "")
	os.Unsetenv("INDEXTTS_PIP")
	t.Cleanup(func() { os.Unsetenv("INDEXTTS_PIP") })

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "pip3", cfg.Tools.Pip)
	assert.Equal(t, 9300, cfg.Server.Port)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("INDEXTTS_REPO_URL", "https://example.com/fork.git")
	t.Setenv("INDEXTTS_AUTH_TOKEN", "secret")
	t.Setenv("INDEXTTS_STEP_DELAY_MS", "10")
	t.Setenv("INDEXTTS_LOG_LEVEL", "DEBUG")
	t.Setenv("INDEXTTS_HISTORY", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "https://example.com/fork.git", cfg.App.RepoURL)
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, 10, cfg.Install.StepDelayMS)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.History.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad locale", func(c *Config) { c.Locale = "fr" }, "locale"},
		{"bad repo", func(c *Config) { c.App.RepoURL = "not a url" }, "app.repo_url"},
		{"escaping entry point", func(c *Config) { c.App.EntryPoint = "../main.py" }, "app.entry_point"},
		{"negative delay", func(c *Config) { c.Install.StepDelayMS = -1 }, "install.step_delay_ms"},
		{"too many retries", func(c *Config) { c.Install.MaxRetries = 11 }, "install.max_retries"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"unknown message", func(c *Config) { c.Messages = map[string]string{"nope": "x"} }, "messages.nope"},
		{"override drops stderr", func(c *Config) { c.Messages = map[string]string{MsgPipFailed: "pip broke"} }, "messages.pip_failed"},
		{"override adds a verb", func(c *Config) { c.Messages = map[string]string{MsgCompleted: "done %s"} }, "messages.completed"},
		{"timeout needs two", func(c *Config) { c.Messages = map[string]string{MsgTimedOut: "%s timed out"} }, "messages.timed_out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "Validate() = %v, want ValidateErrors", err)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_MessageOverridesWithMatchingVerbs(t *testing.T) {
	cfg := Default()
	cfg.Messages = map[string]string{
		MsgCloneFailed: "git clone 失败：%s",
		MsgTimedOut:    "%s 在 %s 后超时",
		MsgCompleted:   "100%% done",
	}
	require.NoError(t, cfg.Validate())

	msgs := cfg.Catalog()
	assert.Equal(t, "git clone 失败：fatal: early EOF", msgs.Format(MsgCloneFailed, "fatal: early EOF"))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Install.MaxRetries = 4
	cfg.Messages = map[string]string{MsgCompleted: "done"}

	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# IndexTTS installer configuration")

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Install.MaxRetries)
	assert.Equal(t, "done", loaded.Catalog().Text(MsgCompleted))
}

// =============================================================================
// MESSAGE CATALOG
// =============================================================================

func TestResolveLocale(t *testing.T) {
	tests := []struct {
		locale string
		lang   string
		want   string
	}{
		{"zh", "en_US.UTF-8", "zh"},
		{"en", "zh_CN.UTF-8", "en"},
		{"auto", "en_US.UTF-8", "en"},
		{"auto", "zh_CN.UTF-8", "zh"},
		{"auto", "zh_TW.UTF-8", "zh"},
		{"auto", "", "zh"},
		{"auto", "C", "zh"},
	}

	for _, tt := range tests {
		t.Run(tt.locale+"/"+tt.lang, func(t *testing.T) {
			t.Setenv("LC_ALL", "")
			t.Setenv("LC_MESSAGES", "")
			t.Setenv("LANG", tt.lang)
			if got := ResolveLocale(tt.locale); got != tt.want {
				t.Errorf("ResolveLocale(%q) with LANG=%q = %q, want %q", tt.locale, tt.lang, got, tt.want)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	zh := NewCatalog("zh", nil)
	assert.Equal(t, "准备安装环境...", zh.Text(MsgPreparing))
	assert.Equal(t, "IndexTTS 安装完成！", zh.Text(MsgCompleted))
	assert.Equal(t, "Ready to install", zh.Text(MsgReady))
	assert.Equal(t, "Git clone failed: boom", zh.Format(MsgCloneFailed, "boom"))

	en := NewCatalog("en", map[string]string{MsgCloned: "Fetched"})
	assert.Equal(t, "Fetched", en.Text(MsgCloned))
	assert.Equal(t, "Installing Python dependencies...", en.Text(MsgDependencies))
	assert.Equal(t, "missing_key", en.Text("missing_key"))
}

func TestCatalog_EveryLocaleHasEveryStep(t *testing.T) {
	for locale, texts := range catalogs {
		for key := range catalogs["zh"] {
			if _, ok := texts[key]; !ok {
				t.Errorf("catalog %s missing %s", locale, key)
			}
		}
	}
}

// =============================================================================
// WATCH & SHARED INSTANCE
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[install]\nmax_retries = 1\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 20*time.Millisecond, zerolog.Nop(), func(c *Config) { reloaded <- c })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[install]\nmax_retries = 3\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 3, cfg.Install.MaxRetries)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestGlobal_ConcurrentAccess(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}
