// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build windows

package lifecycle

import (
	"os"
	"syscall"
)

// unlockPathIfNeeded clears the read-only attribute on path on a best-effort
// basis so a subsequent remove can succeed, mirroring the permission-relax
// step taken on Unix.
func unlockPathIfNeeded(path string) {
	_ = os.Chmod(path, 0o666)

	pathp, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return
	}
	attrs, err := syscall.GetFileAttributes(pathp)
	if err != nil {
		return
	}
	if attrs&syscall.FILE_ATTRIBUTE_READONLY != 0 {
		_ = syscall.SetFileAttributes(pathp, attrs&^syscall.FILE_ATTRIBUTE_READONLY)
	}
}
