// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// MaxOutputRunes caps captured tool output embedded in user-facing messages.
const MaxOutputRunes = 4000

// TruncateRunes truncates a string to a maximum number of runes.
// If the string is truncated, "..." is appended.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateRunesHead keeps the last maxRunes runes of s. If the string is
// truncated, "..." is prepended.
func TruncateRunesHead(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[len(runes)-maxRunes:])
	}
	return "..." + string(runes[len(runes)-(maxRunes-3):])
}

// TrimOutput trims surrounding whitespace from captured process output and
// bounds it to its last maxRunes runes, where git and pip print the error.
func TrimOutput(s string, maxRunes int) string {
	return TruncateRunesHead(strings.TrimSpace(s), maxRunes)
}
