// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

// =============================================================================
// MESSAGE CATALOG
// =============================================================================

// Message keys. Values of the %s-style keys take one argument.
const (
	MsgReady            = "ready"
	MsgPreparing        = "preparing"
	MsgCloning          = "cloning"
	MsgCloned           = "cloned"
	MsgCloneSkipped     = "clone_skipped"
	MsgDependencies     = "dependencies"
	MsgDepsInstalled    = "deps_installed"
	MsgModels           = "models"
	MsgCompleted        = "completed"
	MsgCancelled        = "cancelled"
	MsgTimedOut         = "timed_out"          // tool, duration
	MsgCloneFailed      = "clone_failed"       // stderr
	MsgCloneSpawnFailed = "clone_spawn_failed" // error
	MsgPipFailed        = "pip_failed"         // stderr
	MsgPipSpawnFailed   = "pip_spawn_failed"   // error
	MsgModelsDirFailed  = "models_dir_failed"  // error
	MsgStarted          = "started"
)

// Failure texts stay English in every locale so they can be pasted into bug
// reports verbatim.
var failureTexts = map[string]string{
	MsgCancelled:        "Installation cancelled",
	MsgTimedOut:         "%s timed out after %s",
	MsgCloneFailed:      "Git clone failed: %s",
	MsgCloneSpawnFailed: "Failed to run git clone: %s",
	MsgPipFailed:        "Pip install failed: %s",
	MsgPipSpawnFailed:   "Failed to run pip install: %s",
	MsgModelsDirFailed:  "Failed to create models directory: %s",
	MsgStarted:          "Installation started",
	MsgReady:            "Ready to install",
}

var catalogs = map[string]map[string]string{
	"zh": {
		MsgPreparing:     "准备安装环境...",
		MsgCloning:       "正在克隆 IndexTTS 源代码...",
		MsgCloned:        "源代码克隆完成",
		MsgCloneSkipped:  "源代码已存在，跳过克隆",
		MsgDependencies:  "正在安装 Python 依赖...",
		MsgDepsInstalled: "依赖安装完成",
		MsgModels:        "正在设置模型目录...",
		MsgCompleted:     "IndexTTS 安装完成！",
	},
	"en": {
		MsgPreparing:     "Preparing installation environment...",
		MsgCloning:       "Cloning IndexTTS source code...",
		MsgCloned:        "Source code cloned",
		MsgCloneSkipped:  "Source code already present, skipping clone",
		MsgDependencies:  "Installing Python dependencies...",
		MsgDepsInstalled: "Dependencies installed",
		MsgModels:        "Setting up models directory...",
		MsgCompleted:     "IndexTTS installation complete!",
	},
}

var (
	supportedTags = []language.Tag{language.Chinese, language.English}
	localeMatcher = language.NewMatcher(supportedTags)
)

// messageArgs is the argument count of each formatted key. Other keys take
// none.
var messageArgs = map[string]int{
	MsgTimedOut:         2,
	MsgCloneFailed:      1,
	MsgCloneSpawnFailed: 1,
	MsgPipFailed:        1,
	MsgPipSpawnFailed:   1,
	MsgModelsDirFailed:  1,
}

// MessageArgs returns how many format verbs the text for key must carry.
func MessageArgs(key string) int {
	return messageArgs[key]
}

// countVerbs counts the fmt verbs in text. "%%" is a literal percent.
func countVerbs(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '%' {
			continue
		}
		if i+1 < len(text) && text[i+1] == '%' {
			i++
			continue
		}
		n++
	}
	return n
}

// IsMessageKey reports whether key names a catalog entry.
func IsMessageKey(key string) bool {
	if _, ok := failureTexts[key]; ok {
		return true
	}
	_, ok := catalogs["zh"][key]
	return ok
}

// ResolveLocale maps a configured locale to a catalog name. "auto" reads
// LC_ALL, LC_MESSAGES and LANG in that order and falls back to "zh".
func ResolveLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "zh" || locale == "en" {
		return locale
	}

	var env string
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			env = v
			break
		}
	}
	if env == "" || env == "C" || env == "POSIX" {
		return "zh"
	}

	// en_US.UTF-8 -> en-US
	if i := strings.IndexAny(env, ".@"); i >= 0 {
		env = env[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(env, "_", "-"))
	if err != nil {
		return "zh"
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return "zh"
	}
	base, _ := supportedTags[idx].Base()
	return base.String()
}

// Catalog resolves message keys to display text.
type Catalog struct {
	locale string
	texts  map[string]string
}

// NewCatalog builds the catalog for locale with per-key overrides applied.
func NewCatalog(locale string, overrides map[string]string) *Catalog {
	resolved := ResolveLocale(locale)
	texts := make(map[string]string, len(failureTexts)+len(catalogs[resolved])+len(overrides))
	for k, v := range failureTexts {
		texts[k] = v
	}
	for k, v := range catalogs[resolved] {
		texts[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			texts[k] = v
		}
	}
	return &Catalog{locale: resolved, texts: texts}
}

// Catalog returns the message catalog selected by the configuration.
func (c *Config) Catalog() *Catalog {
	return NewCatalog(c.Locale, c.Messages)
}

// Locale returns the resolved catalog name.
func (c *Catalog) Locale() string {
	return c.locale
}

// Text returns the text for key, or the key itself when unknown.
func (c *Catalog) Text(key string) string {
	if t, ok := c.texts[key]; ok {
		return t
	}
	return key
}

// Format renders the text for key with args.
func (c *Catalog) Format(key string, args ...any) string {
	return fmt.Sprintf(c.Text(key), args...)
}
