// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/pool"
	"github.com/quackgate/quackgate/internal/registry"
	"github.com/quackgate/quackgate/internal/tiles"
)

func newTestTilesHandler() *TilesHandler {
	p := pool.New(4, func() *engine.Session { return nil }, registry.New())
	composer := tiles.New(p, cache.NewMemoryCache(0), nil)
	return NewTilesHandler(composer)
}

func requestWithURLParams(method, target string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestTilesHandler_Tile_InvalidCoordinateIsRejected(t *testing.T) {
	h := newTestTilesHandler()
	req := requestWithURLParams(http.MethodGet, "/tiles/points/geom/a/0/0", map[string]string{
		"tableName": "points", "columnName": "geom", "z": "a", "x": "0", "y": "0",
	})
	w := httptest.NewRecorder()

	h.Tile(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTilesHandler_Tile_InvalidTableNameIsRejected(t *testing.T) {
	h := newTestTilesHandler()
	req := requestWithURLParams(http.MethodGet, "/tiles/bad;table/geom/1/0/0", map[string]string{
		"tableName": "bad;table", "columnName": "geom", "z": "1", "x": "0", "y": "0",
	})
	w := httptest.NewRecorder()

	h.Tile(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTilesHandler_Metadata_InvalidColumnNameIsRejected(t *testing.T) {
	h := newTestTilesHandler()
	req := requestWithURLParams(http.MethodGet, "/tiles/points/bad col", map[string]string{
		"tableName": "points", "columnName": "bad col",
	})
	w := httptest.NewRecorder()

	h.Metadata(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseUint(t *testing.T) {
	v, err := parseUint("42")
	assert.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	_, err = parseUint("-1")
	assert.Error(t, err)

	_, err = parseUint("notanumber")
	assert.Error(t, err)
}
