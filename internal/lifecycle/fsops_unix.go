// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !windows

package lifecycle

import "os"

// unlockPathIfNeeded relaxes permissions on path on a best-effort basis so a
// subsequent remove can succeed. Darwin's uchg/schg immutable flags aren't
// reachable from Go's standard library without cgo, so this only clears the
// Unix permission bits; on macOS a file left chflags-immutable by another
// process still needs clearing out-of-band before safeRemove retries.
func unlockPathIfNeeded(path string) {
	_ = os.Chmod(path, 0o666)
}
