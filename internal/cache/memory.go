// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

// MemoryCache is the default, non-persistent backend: entries live only for
// the process's lifetime (and, within that, only for a bounded TTL so a
// runaway cache can't grow without limit).
type MemoryCache struct {
	entries *ttlcache.Cache[string, []byte]
	ttl     time.Duration
}

// NewMemoryCache creates an in-memory cache backend with the given entry TTL.
// A TTL of zero falls back to a 30 minute default, matching the teacher's own
// in-memory cache convention.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	entries := ttlcache.New(ttlcache.Options[string, []byte]{}.
		SetDefaultTTL(ttl))
	return &MemoryCache{entries: entries, ttl: ttl}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := m.entries.Get(key)
	return value, found, nil
}

func (m *MemoryCache) Put(_ context.Context, key string, value []byte) error {
	m.entries.Set(key, value, ttlcache.DefaultTTL)
	return nil
}

func (m *MemoryCache) Clear(_ context.Context) error {
	m.entries.Close()
	m.entries = ttlcache.New(ttlcache.Options[string, []byte]{}.
		SetDefaultTTL(m.ttl))
	return nil
}

// Close releases the backing goroutine the ttlcache instance owns.
func (m *MemoryCache) Close() {
	m.entries.Close()
}
