// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo exposes version metadata injected at build time via ldflags.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent is the default User-Agent header used for any outbound HTTP calls.
var UserAgent string

func init() {
	UserAgent = fmt.Sprintf("quackgate/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String renders a human-readable multi-line build summary.
func String() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s", Version, Commit, Date)
}

type info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// JSON renders the build summary as a JSON object.
func JSON() ([]byte, error) {
	return json.Marshal(info{Version: Version, Commit: Commit, Date: Date})
}
