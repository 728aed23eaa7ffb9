// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package engine owns the single process-wide handle to the embedded
// analytical SQL engine, mirroring the lifecycle the gateway's Lifecycle
// Manager drives (open, cursor, interrupt, checkpoint, close).
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog/log"
)

// mandatoryExtensions are installed and loaded at session open. Failure to
// install or load any of them is a fatal initialization error.
var mandatoryExtensions = []string{"httpfs", "iceberg", "spatial", "h3"}

// Session owns one engine handle opened against a single database file.
type Session struct {
	db           *sql.DB
	connector    *duckdb.Connector
	databasePath string
	threadCount  int
}

// Open creates (if absent) and opens the database at databasePath, installs
// and loads the mandatory extensions, and sets the engine's thread count to
// the host's CPU count. Any failure during this sequence is returned as a
// fatal initialization error — the caller must not retain a partially
// initialized Session.
func Open(ctx context.Context, databasePath string) (*Session, error) {
	connector, err := duckdb.NewConnector(databasePath, nil)
	if err != nil {
		return nil, fmt.Errorf("open engine at %s: %w", databasePath, err)
	}

	db := sql.OpenDB(connector)

	threadCount := runtime.NumCPU()
	if threadCount < 1 {
		threadCount = 1
	}

	s := &Session{
		db:           db,
		connector:    connector,
		databasePath: databasePath,
		threadCount:  threadCount,
	}

	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) init(ctx context.Context) error {
	for _, ext := range mandatoryExtensions {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("load extension %s: %w", ext, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("SET threads TO %d", s.threadCount)); err != nil {
		return fmt.Errorf("set thread count: %w", err)
	}

	log.Info().
		Str("database_path", s.databasePath).
		Int("threads", s.threadCount).
		Strs("extensions", mandatoryExtensions).
		Msg("engine session initialized")

	return nil
}

// DatabasePath returns the path this session was opened against.
func (s *Session) DatabasePath() string {
	return s.databasePath
}

// Cursor acquires an independent execution context. Cursors must not be
// shared across concurrent workers; each worker task owns its cursor for the
// task's entire lifetime.
func (s *Session) Cursor(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire cursor: %w", err)
	}
	return conn, nil
}

// Interrupt signals the statement currently executing on cursor to abort.
// Idempotent: interrupting a cursor with no in-flight statement is a no-op.
func (s *Session) Interrupt(cursor *sql.Conn) error {
	return cursor.Raw(func(driverConn any) error {
		conn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		return conn.Interrupt()
	})
}

// ForceCheckpoint flushes the WAL into the main database file.
func (s *Session) ForceCheckpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "FORCE CHECKPOINT")
	return err
}

// Close releases the engine handle. Subsequent Cursor calls fail until the
// session is re-initialized via Open.
func (s *Session) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for ad-hoc queries outside the
// worker-pool's cursor contract.
func (s *Session) DB() *sql.DB {
	return s.db
}
