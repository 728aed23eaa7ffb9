// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pool bridges the asynchronous request layer to a bounded set of
// workers executing synchronous engine calls, tracking each in-flight query
// in a Registry so it can be interrupted by identifier.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/registry"
)

// ErrNoEngine is returned when a task is submitted with no active session.
var ErrNoEngine = errors.New("no engine session")

// ErrCancelled is surfaced when a query is interrupted, either via explicit
// cancellation or because the caller's context was cancelled while awaiting.
var ErrCancelled = errors.New("query was cancelled")

// SessionProvider supplies the current engine session; it is a function
// rather than a stored pointer so the pool always observes the Lifecycle
// Manager's latest session, including across reopen/save-as swaps.
type SessionProvider func() *engine.Session

// Pool is a bounded worker pool sized to CPU count (minimum 4).
type Pool struct {
	sem      chan struct{}
	session  SessionProvider
	registry *registry.Registry

	activeGauge func(delta int)
}

// New creates a pool with the given concurrency bound.
func New(maxWorkers int, session SessionProvider, reg *registry.Registry) *Pool {
	if maxWorkers < 4 {
		maxWorkers = 4
	}
	return &Pool{
		sem:      make(chan struct{}, maxWorkers),
		session:  session,
		registry: reg,
	}
}

// SetActiveGauge wires a callback invoked with +1/-1 as tasks start/finish,
// used to drive the active-workers metric without this package depending on
// the metrics package directly.
func (p *Pool) SetActiveGauge(fn func(delta int)) {
	p.activeGauge = fn
}

// Registry exposes the underlying query registry for the cancel endpoint.
func (p *Pool) Registry() *registry.Registry {
	return p.registry
}

// RunDBTask acquires a cursor from the current session, registers it under
// queryID (if non-empty), runs execute on a bounded worker slot, and returns
// its result. execute receives the task's own cancellable context, not the
// caller's ctx directly, so it must pass that context into QueryContext/
// ExecContext for native engine interrupt to fire on cancellation. If ctx is
// cancelled or the query is cancelled via queryID while the task is in
// flight, the cursor is interrupted and ErrCancelled is returned. If the
// awaiting caller observes ErrCancelled, the registry no longer contains
// queryID by the time RunDBTask returns.
func (p *Pool) RunDBTask(ctx context.Context, queryID string, execute func(taskCtx context.Context, cursor *sql.Conn) (any, error)) (any, error) {
	sess := p.session()
	if sess == nil {
		return nil, ErrNoEngine
	}

	cursor, err := sess.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire cursor: %w", err)
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		_ = cursor.Close()
		return nil, ctx.Err()
	}
	if p.activeGauge != nil {
		p.activeGauge(1)
	}
	defer func() {
		<-p.sem
		if p.activeGauge != nil {
			p.activeGauge(-1)
		}
	}()

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if queryID != "" {
		p.registry.Register(&registry.Record{
			QueryID:   queryID,
			Cursor:    cursor,
			Cancel:    cancel,
			StartedAt: time.Now(),
		})
		defer p.registry.Unregister(queryID)
	}

	type result struct {
		val any
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		val, err := execute(taskCtx, cursor)
		if err != nil && isInterrupted(err) {
			err = ErrCancelled
		}
		resultCh <- result{val: val, err: err}
	}()

	select {
	case res := <-resultCh:
		if cerr := cursor.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("query_id", queryID).Msg("cursor close failed")
		}
		return res.val, res.err
	case <-taskCtx.Done():
		if err := sess.Interrupt(cursor); err != nil {
			log.Warn().Err(err).Str("query_id", queryID).Msg("interrupt failed")
		}
		<-resultCh
		_ = cursor.Close()
		return nil, ErrCancelled
	}
}

// CancelQuery cancels the task context registered under queryID, if still in
// flight, so go-duckdb's own context watcher interrupts the running
// statement; Session.Interrupt is then issued as a secondary, belt-and-
// braces signal in case the driver's context watcher hasn't fired yet.
// Returns false if no such query is currently registered.
func (p *Pool) CancelQuery(queryID string) bool {
	rec, ok := p.registry.Lookup(queryID)
	if !ok {
		return false
	}
	if rec.Cancel != nil {
		rec.Cancel()
	}
	sess := p.session()
	if sess != nil {
		if err := sess.Interrupt(rec.Cursor); err != nil {
			log.Warn().Err(err).Str("query_id", queryID).Msg("cancel: interrupt failed")
		}
	}
	return true
}

// CancelAll cancels and unregisters every in-flight query's task context,
// falling back to Session.Interrupt as a secondary signal. Used during
// reconnection and shutdown.
func (p *Pool) CancelAll() {
	sess := p.session()
	for _, rec := range p.registry.Drain() {
		if rec.Cancel != nil {
			rec.Cancel()
		}
		if sess != nil {
			if err := sess.Interrupt(rec.Cursor); err != nil {
				log.Warn().Err(err).Str("query_id", rec.QueryID).Msg("cancel all: interrupt failed")
			}
		}
	}
}

func isInterrupted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupt")
}
