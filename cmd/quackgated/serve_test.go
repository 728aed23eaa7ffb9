// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/config"
)

func TestBuildCache_MemoryWhenNotPersistent(t *testing.T) {
	cfg := &config.AppConfig{Config: config.Values{CachePersist: false}}

	c, closer, err := buildCache(cfg)
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer()

	_, ok := c.(*cache.MemoryCache)
	assert.True(t, ok)
}

func TestBuildCache_PersistentWhenConfigured(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "quackgate.db")
	cfg := &config.AppConfig{Config: config.Values{CachePersist: true, DatabasePath: dbPath}}

	c, closer, err := buildCache(cfg)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NotNil(t, closer)
	closer()
}

func TestServeCommand_DefaultFlags(t *testing.T) {
	cmd := serveCommand()

	configFlag, err := cmd.Flags().GetString("config")
	require.NoError(t, err)
	assert.Equal(t, "config.toml", configFlag)

	portFlag, err := cmd.Flags().GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 0, portFlag)

	dbPathFlag, err := cmd.Flags().GetString("db-path")
	require.NoError(t, err)
	assert.Equal(t, "", dbPathFlag)
}
