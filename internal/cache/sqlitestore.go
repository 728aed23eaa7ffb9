// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// modernc.org/sqlite registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/quackgate/quackgate/pkg/sqlite3store"
)

// PersistentCache is the opt-in backend backed by a local SQLite file; cached
// tile/query payloads stay on disk until Clear, which the lifecycle manager
// calls on reconnection and on shutdown. It wraps the
// teacher's session store as-is: the underlying table stays
// sessions(token, data, expiry), with the cache key/value stored straight
// into token/data and expiry pinned to maxExpirationTime(), since entries
// here are not TTL-bound — Clear() is the only mechanism that removes them.
// The store's background cleanup goroutine is disabled accordingly.
type PersistentCache struct {
	db    *sql.DB
	store *sqlite3store.SQLite3Store
}

// OpenPersistentCache opens (creating if absent) a SQLite database at path
// and ensures the cache table exists.
func OpenPersistentCache(path string) (*PersistentCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	store := sqlite3store.New(db, sqlite3store.WithCleanupInterval(0))

	return &PersistentCache{db: db, store: store}, nil
}

// maxExpirationTime is the sentinel "never expires" timestamp for the reused
// sessions table; cache entries here live until Clear() removes them, not
// until an expiry timestamp passes.
func maxExpirationTime() time.Time {
	return time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (p *PersistentCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, err := p.store.FindCtx(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (p *PersistentCache) Put(ctx context.Context, key string, value []byte) error {
	return p.store.CommitCtx(ctx, key, value, maxExpirationTime())
}

func (p *PersistentCache) Clear(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM sessions")
	return err
}

// Close releases the underlying database handle.
func (p *PersistentCache) Close() error {
	p.store.StopCleanup()
	return p.db.Close()
}
