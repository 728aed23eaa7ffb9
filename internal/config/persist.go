// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var logSettingKeyPattern = map[string]*regexp.Regexp{
	"logPath":       regexp.MustCompile(`(?m)^#?\s*logPath\s*=.*$`),
	"logMaxSize":    regexp.MustCompile(`(?m)^#?\s*logMaxSize\s*=.*$`),
	"logMaxBackups": regexp.MustCompile(`(?m)^#?\s*logMaxBackups\s*=.*$`),
	"logLevel":      regexp.MustCompile(`(?m)^#?\s*logLevel\s*=.*$`),
}

// updateLogSettingsInTOML rewrites the logPath/logMaxSize/logMaxBackups/logLevel
// keys in content to their given values, updating a commented-out or existing
// key in place rather than appending a new section, so hand-written comments
// and ordering in the config file survive a runtime settings change.
func updateLogSettingsInTOML(content, logLevel, logPath string, logMaxSize, logMaxBackups int) string {
	replacements := map[string]string{
		"logPath":       fmt.Sprintf(`logPath = %q`, logPath),
		"logMaxSize":    fmt.Sprintf("logMaxSize = %d", logMaxSize),
		"logMaxBackups": fmt.Sprintf("logMaxBackups = %d", logMaxBackups),
		"logLevel":      fmt.Sprintf(`logLevel = %q`, logLevel),
	}

	updated := content
	for key, line := range replacements {
		pattern := logSettingKeyPattern[key]
		if pattern.MatchString(updated) {
			updated = pattern.ReplaceAllString(updated, line)
			continue
		}
		// Key absent entirely: append just before [httpTimeouts] if present,
		// otherwise at the end of the file. This only triggers for config
		// files written before a given key existed.
		if idx := strings.Index(updated, "[httpTimeouts]"); idx != -1 {
			updated = updated[:idx] + line + "\n\n" + updated[idx:]
		} else {
			updated = strings.TrimRight(updated, "\n") + "\n" + line + "\n"
		}
	}
	return updated
}

// PersistLogSettings rewrites the log settings in the on-disk config file in
// place, preserving comments and section ordering.
func (c *AppConfig) PersistLogSettings(logLevel, logPath string, logMaxSize, logMaxBackups int) error {
	content, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("read config for persist: %w", err)
	}

	updated := updateLogSettingsInTOML(string(content), logLevel, logPath, logMaxSize, logMaxBackups)

	if err := os.WriteFile(c.configPath, []byte(updated), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.Config.LogLevel = logLevel
	c.Config.LogPath = logPath
	c.Config.LogMaxSize = logMaxSize
	c.Config.LogMaxBackups = logMaxBackups
	return nil
}
