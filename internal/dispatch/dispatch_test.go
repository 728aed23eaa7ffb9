// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/pool"
	"github.com/quackgate/quackgate/internal/registry"
)

func noEngineDispatcher() *Dispatcher {
	reg := registry.New()
	p := pool.New(4, func() *engine.Session { return nil }, reg)
	c := cache.NewMemoryCache(0)
	var shuttingDown atomic.Bool
	return New(p, c, nil, &shuttingDown)
}

func TestDispatch_ShuttingDownRejectsEverything(t *testing.T) {
	d := noEngineDispatcher()
	d.shutdownRequested.Store(true)

	_, err := d.Dispatch(context.Background(), Command{Type: TypeExec, SQL: "SELECT 1"})

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindShuttingDown, apiErr.Kind)
}

func TestDispatch_MissingSQLField(t *testing.T) {
	d := noEngineDispatcher()

	for _, typ := range []Type{TypeExec, TypeArrow, TypeJSON} {
		_, err := d.Dispatch(context.Background(), Command{Type: typ})
		var apiErr *apierr.Error
		require.ErrorAs(t, err, &apiErr, "type %s", typ)
		assert.Equal(t, apierr.KindMissingField, apiErr.Kind)
	}
}

func TestDispatch_InsertArrowFileMissingFields(t *testing.T) {
	d := noEngineDispatcher()

	_, err := d.Dispatch(context.Background(), Command{Type: TypeInsertArrowFile, TableName: "t"})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindMissingField, apiErr.Kind)

	_, err = d.Dispatch(context.Background(), Command{Type: TypeInsertArrowFile, FileName: "f.arrow"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindMissingField, apiErr.Kind)
}

func TestDispatch_UnknownCommandType(t *testing.T) {
	d := noEngineDispatcher()

	_, err := d.Dispatch(context.Background(), Command{Type: Type("bogus")})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindUnknownCommand, apiErr.Kind)
}

func TestDispatch_SaveProjectAsIsRejected(t *testing.T) {
	d := noEngineDispatcher()

	_, err := d.Dispatch(context.Background(), Command{Type: TypeSaveProjectAs, SourcePath: "a", TargetPath: "b"})
	assert.Error(t, err)
}

func TestDispatch_NoEngineMapsToTypedError(t *testing.T) {
	d := noEngineDispatcher()

	_, err := d.Dispatch(context.Background(), Command{Type: TypeExec, SQL: "SELECT 1"})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindNoEngine, apiErr.Kind)
}

func TestDispatch_ResultCarriesQueryID(t *testing.T) {
	d := noEngineDispatcher()

	result, err := d.Dispatch(context.Background(), Command{Type: TypeExec, SQL: "SELECT 1", QueryID: "q1"})
	require.Error(t, err)
	assert.Equal(t, "q1", result.QueryID)
}

type staticInterceptor struct {
	result Result
	err    error
}

func (s staticInterceptor) Intercept(_ context.Context, _ Command) (Result, bool, error) {
	return s.result, true, s.err
}

func TestDispatch_InterceptorShortCircuitsBuiltins(t *testing.T) {
	d := noEngineDispatcher()
	d.SetInterceptor(staticInterceptor{result: Result{Type: "done"}})

	result, err := d.Dispatch(context.Background(), Command{Type: TypeExec, SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Type)
}
