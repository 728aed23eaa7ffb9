// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupStaleWAL_QuarantinesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "project.db")
	walPath := dbPath + ".wal"

	require.NoError(t, os.WriteFile(walPath, []byte("stale wal contents"), 0o644))

	cleanupStaleWAL(dbPath)

	_, err := os.Stat(walPath)
	assert.True(t, os.IsNotExist(err), "original WAL path should no longer exist")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "quarantine", "quarantine copy should have been best-effort removed")
	}
}

func TestCleanupStaleWAL_NoopWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "project.db")

	assert.NotPanics(t, func() { cleanupStaleWAL(dbPath) })
}

func TestSafeRemove_RemovesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zero-length.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, safeRemove(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCopyDatabaseFile_FullCopyFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.db")
	dst := filepath.Join(dir, "target.db")
	content := []byte("duckdb file contents, not actually a real database")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	require.NoError(t, fullCopy(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWaitForWALDisappear_ReturnsPromptlyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "project.db")

	assert.NotPanics(t, func() { waitForWALDisappear(dbPath) })
}
