// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quackgate/quackgate/internal/api/httpx"
	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/tiles"
)

// TilesHandler serves the vector tile and tile metadata routes.
type TilesHandler struct {
	composer *tiles.Composer
}

// NewTilesHandler builds a TilesHandler.
func NewTilesHandler(c *tiles.Composer) *TilesHandler {
	return &TilesHandler{composer: c}
}

// Tile serves GET /tiles/{tableName}/{columnName}/{z}/{x}/{y}.
func (h *TilesHandler) Tile(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "tableName")
	columnName := chi.URLParam(r, "columnName")

	z, zErr := parseUint(chi.URLParam(r, "z"))
	x, xErr := parseUint(chi.URLParam(r, "x"))
	y, yErr := parseUint(chi.URLParam(r, "y"))
	if zErr != nil || xErr != nil || yErr != nil {
		httpx.WriteError(w, "", apierr.Errorf(apierr.KindMissingField, "invalid tile coordinate"))
		return
	}

	body, err := h.composer.Tile(r.Context(), tableName, columnName, z, x, y)
	if err != nil {
		httpx.WriteError(w, "", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Metadata serves GET /tiles/{tableName}/{columnName}.
func (h *TilesHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "tableName")
	columnName := chi.URLParam(r, "columnName")

	meta, err := h.composer.Metadata(r.Context(), tableName, columnName)
	if err != nil {
		httpx.WriteError(w, "", err)
		return
	}
	httpx.WriteJSON(w, meta)
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
