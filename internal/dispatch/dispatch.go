// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/metrics"
	"github.com/quackgate/quackgate/internal/pool"
)

// Interceptor lets an external collaborator intercept a command and either
// return a typed Result or defer to the built-in dispatcher by returning
// ok=false. This is the capability-interface extensibility point called out
// in the design notes; the gateway ships no interceptors of its own.
type Interceptor interface {
	Intercept(ctx context.Context, cmd Command) (result Result, ok bool, err error)
}

// Dispatcher routes Commands to the worker pool, integrating the cache and
// checking shutdownRequested before any command but the admin endpoints.
type Dispatcher struct {
	pool              *pool.Pool
	cache             cache.Cache
	metrics           *metrics.Manager
	shutdownRequested *atomic.Bool
	interceptor       Interceptor
}

// New builds a Dispatcher. metrics may be nil (metrics become no-ops).
func New(p *pool.Pool, c cache.Cache, m *metrics.Manager, shutdownRequested *atomic.Bool) *Dispatcher {
	return &Dispatcher{pool: p, cache: c, metrics: m, shutdownRequested: shutdownRequested}
}

// SetInterceptor installs an optional Interceptor checked before the
// built-in switch on every Dispatch call.
func (d *Dispatcher) SetInterceptor(i Interceptor) { d.interceptor = i }

// Dispatch executes cmd, honoring shutdownRequested, and returns a Result
// ready for response framing.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	if d.shutdownRequested != nil && d.shutdownRequested.Load() {
		return Result{}, apierr.ShuttingDown()
	}

	if d.interceptor != nil {
		if result, ok, err := d.interceptor.Intercept(ctx, cmd); ok {
			return result, err
		}
	}

	start := time.Now()
	outcome := "error"
	defer func() {
		if d.metrics != nil {
			d.metrics.QueriesTotal.WithLabelValues(string(cmd.Type), outcome).Inc()
			d.metrics.QueryDuration.WithLabelValues(string(cmd.Type)).Observe(time.Since(start).Seconds())
		}
	}()

	result, err := d.dispatch(ctx, cmd)
	if err == nil {
		outcome = "ok"
	} else if cmd.Type == TypeExec || cmd.Type == TypeJSON || cmd.Type == TypeArrow {
		var apiErr *apierr.Error
		if ok := asAPIError(err, &apiErr); ok && apiErr.Kind == apierr.KindCancelled {
			outcome = "cancelled"
		}
	}
	result.QueryID = cmd.QueryID
	return result, err
}

func asAPIError(err error, target **apierr.Error) bool {
	if e, ok := err.(*apierr.Error); ok {
		*target = e
		return true
	}
	return false
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Type {
	case TypeExec:
		if cmd.SQL == "" {
			return Result{}, apierr.MissingField("sql")
		}
		return d.execExec(ctx, cmd)
	case TypeArrow:
		if cmd.SQL == "" {
			return Result{}, apierr.MissingField("sql")
		}
		return d.execArrow(ctx, cmd)
	case TypeJSON:
		if cmd.SQL == "" {
			return Result{}, apierr.MissingField("sql")
		}
		return d.execJSON(ctx, cmd)
	case TypeInsertArrowFile:
		if cmd.FileName == "" {
			return Result{}, apierr.MissingField("fileName")
		}
		if cmd.TableName == "" {
			return Result{}, apierr.MissingField("tableName")
		}
		return d.execInsertArrowFile(ctx, cmd)
	case TypeSaveProjectAs:
		// saveProjectAs is handled by the Lifecycle Manager and must never
		// reach the worker pool; callers route it there before calling Dispatch.
		return Result{}, apierr.Errorf(apierr.KindUnknownCommand, "saveProjectAs must be routed to the lifecycle manager")
	default:
		return Result{}, apierr.UnknownCommand(string(cmd.Type))
	}
}

// prepareCursor applies best-effort session-scoped pragmas. Failure does not
// abort the query.
func prepareCursor(ctx context.Context, cursor *sql.Conn) {
	if _, err := cursor.ExecContext(ctx, "SET enable_geoparquet_conversion = false"); err != nil {
		log.Debug().Err(err).Msg("best-effort pragma failed")
	}
}

func (d *Dispatcher) execExec(ctx context.Context, cmd Command) (Result, error) {
	_, err := d.pool.RunDBTask(ctx, cmd.QueryID, func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
		prepareCursor(taskCtx, cursor)
		_, err := cursor.ExecContext(taskCtx, cmd.SQL)
		return nil, engineError(err)
	})
	if err != nil {
		return Result{}, poolError(err)
	}
	return Result{Type: "done", ContentType: "text/plain"}, nil
}

func (d *Dispatcher) execArrow(ctx context.Context, cmd Command) (Result, error) {
	key := cache.Key(cmd.SQL, "arrow")
	missed := false

	body, err := cache.Retrieve(ctx, d.cache, key, cmd.Persist, func() ([]byte, error) {
		missed = true
		raw, err := d.pool.RunDBTask(ctx, cmd.QueryID, func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
			prepareCursor(taskCtx, cursor)
			rows, err := cursor.QueryContext(taskCtx, cmd.SQL)
			if err != nil {
				return nil, engineError(err)
			}
			defer rows.Close()
			return rowsToArrowIPC(rows)
		})
		if err != nil {
			return nil, poolError(err)
		}
		return raw.([]byte), nil
	})
	if err != nil {
		return Result{}, err
	}
	d.recordCacheOutcome(missed)
	return Result{Type: "arrow", ContentType: "application/octet-stream", Body: body}, nil
}

func (d *Dispatcher) recordCacheOutcome(missed bool) {
	if d.metrics == nil {
		return
	}
	outcome := "hit"
	if missed {
		outcome = "miss"
	}
	d.metrics.CacheHitsTotal.WithLabelValues(outcome).Inc()
}

func (d *Dispatcher) execJSON(ctx context.Context, cmd Command) (Result, error) {
	key := cache.Key(cmd.SQL, "json")
	missed := false

	body, err := cache.Retrieve(ctx, d.cache, key, cmd.Persist, func() ([]byte, error) {
		missed = true
		raw, err := d.pool.RunDBTask(ctx, cmd.QueryID, func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
			prepareCursor(taskCtx, cursor)
			rows, err := cursor.QueryContext(taskCtx, cmd.SQL)
			if err != nil {
				return nil, engineError(err)
			}
			defer rows.Close()
			return rowsToJSON(rows)
		})
		if err != nil {
			return nil, poolError(err)
		}
		return raw.([]byte), nil
	})
	if err != nil {
		return Result{}, err
	}
	d.recordCacheOutcome(missed)
	return Result{Type: "json", ContentType: "application/json", Body: body}, nil
}

func (d *Dispatcher) execInsertArrowFile(ctx context.Context, cmd Command) (Result, error) {
	// tableName intentionally bypasses the tile route's identifier filter;
	// see SPEC_FULL.md §9(b) / DESIGN.md for the rationale.
	_, err := d.pool.RunDBTask(ctx, cmd.QueryID, func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
		prepareCursor(taskCtx, cursor)
		_, err := cursor.ExecContext(taskCtx,
			fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_arrow(?)", cmd.TableName),
			cmd.FileName)
		return nil, engineError(err)
	})
	if err != nil {
		return Result{}, poolError(err)
	}
	return Result{Type: "done", ContentType: "text/plain"}, nil
}

func engineError(err error) error {
	if err == nil {
		return nil
	}
	return apierr.Wrap(apierr.KindEngineError, err)
}

// poolError maps the worker pool's sentinel errors onto the typed apierr
// kinds the Network Facade understands. Errors already typed (produced
// inside the execute closures via engineError) pass through unchanged.
func poolError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return err
	}
	switch {
	case errors.Is(err, pool.ErrNoEngine):
		return apierr.NoEngine()
	case errors.Is(err, pool.ErrCancelled):
		return apierr.Cancelled()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apierr.Cancelled()
	default:
		return apierr.Wrap(apierr.KindIOError, err)
	}
}

