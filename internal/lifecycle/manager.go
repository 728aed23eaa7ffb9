// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package lifecycle owns startup WAL recovery, the save-project-as
// quiesce/copy/swap sequence, and graceful shutdown, coordinating the
// engine session, worker pool, and result cache so that no query is ever
// left running against a connection that is about to close.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/pool"
	"github.com/quackgate/quackgate/pkg/fsutil"
	"github.com/quackgate/quackgate/pkg/reflinktree"
)

const walDisappearTimeout = time.Second
const walDisappearPoll = 50 * time.Millisecond

// Manager owns the single current engine Session and drives every operation
// that needs to close, recreate, or swap it out from under the worker pool.
type Manager struct {
	mu                sync.Mutex
	session           *engine.Session
	pool              *pool.Pool
	cache             cache.Cache
	shutdownRequested *atomic.Bool
}

// New wires a Manager around an already-open session. shutdownRequested is
// shared with the Network Facade and the Query Dispatcher: setting it true
// blocks new commands from being accepted anywhere in the process.
func New(session *engine.Session, p *pool.Pool, c cache.Cache, shutdownRequested *atomic.Bool) *Manager {
	return &Manager{session: session, pool: p, cache: c, shutdownRequested: shutdownRequested}
}

// Session returns the current engine session. Safe to call from the
// pool.SessionProvider closure; always returns the most recently activated
// session, including across a save-as swap.
func (m *Manager) Session() *engine.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Open performs startup recovery against databasePath and returns a freshly
// initialized session: it removes a zero-length database file, quarantines
// (or removes) a stale WAL, and retries the open once after cleanup if the
// first attempt fails. If the retry fails too and the first error mentioned
// the WAL, it removes the database file and opens a fresh one.
func Open(ctx context.Context, databasePath string) (*engine.Session, error) {
	if fi, err := os.Stat(databasePath); err == nil {
		if fi.Size() == 0 {
			log.Warn().Str("path", databasePath).Msg("removing zero-length database file")
			if err := safeRemove(databasePath); err != nil {
				log.Error().Err(err).Str("path", databasePath).Msg("failed to remove zero-length database file")
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", databasePath).Msg("failed to stat database file, attempting removal")
		_ = safeRemove(databasePath)
	}

	cleanupStaleWAL(databasePath)

	session, err := engine.Open(ctx, databasePath)
	if err == nil {
		return session, nil
	}

	log.Warn().Err(err).Str("path", databasePath).Msg("initial engine open failed, attempting WAL recovery and retry")
	cleanupStaleWAL(databasePath)
	if walErr := safeRemove(walPath(databasePath)); walErr != nil && !errors.Is(walErr, os.ErrNotExist) {
		log.Warn().Err(walErr).Msg("could not remove WAL during recovery")
	}

	session, retryErr := engine.Open(ctx, databasePath)
	if retryErr == nil {
		return session, nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "wal") {
		return nil, fmt.Errorf("engine open failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Warn().Err(retryErr).Str("path", databasePath).Msg("engine open still failing after WAL recovery, recreating database file")
	if rmErr := safeRemove(databasePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return nil, fmt.Errorf("remove database file for recreation: %w (original: %v)", rmErr, err)
	}
	session, freshErr := engine.Open(ctx, databasePath)
	if freshErr != nil {
		return nil, fmt.Errorf("engine open failed after recreating database file: %w (original: %v)", freshErr, err)
	}
	return session, nil
}

func walPath(databasePath string) string {
	return databasePath + ".wal"
}

// cleanupStaleWAL quarantines a pre-existing WAL by renaming it aside before
// attempting to delete it, so a failed delete doesn't block a reopen attempt
// on the original name.
func cleanupStaleWAL(databasePath string) {
	wal := walPath(databasePath)
	if _, err := os.Stat(wal); err != nil {
		return
	}

	quarantine := fmt.Sprintf("%s.quarantine.%d", wal, time.Now().Unix())
	if err := os.Rename(wal, quarantine); err != nil {
		log.Warn().Err(err).Str("path", wal).Msg("could not quarantine stale WAL, attempting direct removal")
		if rmErr := safeRemove(wal); rmErr != nil {
			log.Error().Err(rmErr).Str("path", wal).Msg("failed to remove stale WAL")
		}
		return
	}

	log.Warn().Str("from", wal).Str("to", quarantine).Msg("quarantined stale WAL file")
	if err := safeRemove(quarantine); err != nil {
		log.Warn().Err(err).Str("path", quarantine).Msg("left quarantined WAL on disk")
	}
}

// safeRemove tries os.Remove, and on permission failure relaxes the path's
// attributes once before retrying.
func safeRemove(path string) error {
	err := os.Remove(path)
	if err == nil || !errors.Is(err, os.ErrPermission) {
		return err
	}
	unlockPathIfNeeded(path)
	return os.Remove(path)
}

// waitForWALDisappear polls briefly for the WAL file to vanish after a
// checkpoint, so a subsequent close observes a fully flushed database.
func waitForWALDisappear(databasePath string) {
	wal := walPath(databasePath)
	deadline := time.Now().Add(walDisappearTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(wal); errors.Is(err, os.ErrNotExist) {
			return
		}
		time.Sleep(walDisappearPoll)
	}
}

// Deactivate blocks new commands, cancels every in-flight query, clears the
// result cache on a best-effort basis, and checkpoints and closes the
// current session. The Manager holds no session after this returns
// successfully; callers must follow with Activate.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownRequested.Store(true)
	m.pool.CancelAll()

	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to clear cache before reconnection (continuing)")
		}
	}

	if m.session == nil {
		return nil
	}

	if err := m.session.ForceCheckpoint(ctx); err != nil {
		log.Warn().Err(err).Msg("force checkpoint failed before closing connection (continuing)")
	} else {
		waitForWALDisappear(m.session.DatabasePath())
	}

	if err := m.session.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing current engine connection (continuing)")
	}
	m.session = nil
	return nil
}

// Activate opens a session against newDatabasePath and resumes accepting
// commands.
func (m *Manager) Activate(ctx context.Context, newDatabasePath string) error {
	session, err := Open(ctx, newDatabasePath)
	if err != nil {
		return fmt.Errorf("activate backend at %s: %w", newDatabasePath, err)
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.shutdownRequested.Store(false)
	return nil
}

// SaveProjectAs quiesces the backend, copies (reflinking where supported)
// the database file from sourcePath to targetPath, and reactivates against
// the new path. On any failure after deactivation, it attempts to restore
// the original session before returning the error.
func (m *Manager) SaveProjectAs(ctx context.Context, sourcePath, targetPath string) error {
	absSource, err := filepath.Abs(sourcePath)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("resolve target path: %w", err)
	}
	if absSource == absTarget {
		return nil
	}

	if err := m.Deactivate(ctx); err != nil {
		return err
	}

	if targetDir := filepath.Dir(targetPath); targetDir != "" {
		if _, statErr := os.Stat(targetDir); errors.Is(statErr, os.ErrNotExist) {
			if mkErr := os.MkdirAll(targetDir, 0o755); mkErr != nil {
				log.Warn().Err(mkErr).Str("dir", targetDir).Msg("failed to ensure target directory exists")
			}
		}
	}

	if copyErr := copyDatabaseFile(sourcePath, targetPath); copyErr != nil {
		if restoreErr := m.Activate(ctx, sourcePath); restoreErr != nil {
			log.Error().Err(restoreErr).Msg("failed to restore original database connection after save-as failure")
		}
		return fmt.Errorf("copy database file: %w", copyErr)
	}

	if err := m.Activate(ctx, targetPath); err != nil {
		if restoreErr := m.Activate(ctx, sourcePath); restoreErr != nil {
			log.Error().Err(restoreErr).Msg("failed to restore original database connection after activate failure")
		}
		return err
	}

	return nil
}

// copyDatabaseFile reflinks the database file when source and target live
// on the same filesystem and that filesystem supports copy-on-write clones,
// falling back to a full copy otherwise. Reflinks cannot span filesystems,
// so the (cheap) device comparison runs before the (I/O-bound) clone probe.
func copyDatabaseFile(src, dst string) error {
	srcDir := filepath.Dir(src)
	dstDir := filepath.Dir(dst)
	if dstDir == "" {
		dstDir = "."
	}
	if _, err := os.Stat(dstDir); errors.Is(err, os.ErrNotExist) {
		return fullCopy(src, dst)
	}

	if same, err := fsutil.SameFilesystem(srcDir, dstDir); err == nil && same {
		if supported, reason := reflinktree.SupportsReflink(dstDir); supported {
			if err := reflinktree.Clone(src, dst); err == nil {
				return nil
			} else {
				log.Debug().Err(err).Msg("reflink clone failed, falling back to full copy")
			}
		} else {
			log.Debug().Str("reason", reason).Msg("reflink not supported for target directory, using full copy")
		}
	}
	return fullCopy(src, dst)
}

func fullCopy(src, dst string) (retErr error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if cerr := dstFile.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()

	buf := make([]byte, 1<<20)
	for {
		n, readErr := srcFile.Read(buf)
		if n > 0 {
			if _, writeErr := dstFile.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("write destination: %w", writeErr)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read source: %w", readErr)
		}
	}
}

// Shutdown forces a final checkpoint and closes the session. Callers
// typically invoke this from a delayed handler scheduled by the shutdown
// HTTP endpoint, giving in-flight responses a chance to flush first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownRequested.Store(true)
	m.pool.CancelAll()

	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to clear cache during shutdown (continuing)")
		}
	}

	if m.session == nil {
		return nil
	}

	if err := m.session.ForceCheckpoint(ctx); err != nil {
		log.Warn().Err(err).Msg("force checkpoint failed during shutdown (continuing)")
	} else {
		waitForWALDisappear(m.session.DatabasePath())
	}

	databasePath := m.session.DatabasePath()
	err := m.session.Close()
	m.session = nil

	if walErr := safeRemove(walPath(databasePath)); walErr != nil && !errors.Is(walErr, os.ErrNotExist) {
		log.Warn().Err(walErr).Msg("failed to remove WAL sidecar after shutdown (continuing)")
	}

	return err
}

// ScheduleShutdown marks the server for shutdown immediately and performs
// the actual checkpoint/close after delay, matching the delayed-shutdown
// behavior the shutdown endpoint needs so the HTTP response can be written
// before the connection closes underneath it.
func (m *Manager) ScheduleShutdown(delay time.Duration, onDone func()) {
	m.shutdownRequested.Store(true)
	time.AfterFunc(delay, func() {
		if err := m.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error during delayed shutdown")
		}
		if onDone != nil {
			onDone()
		}
	})
}
