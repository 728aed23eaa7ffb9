// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"sync/atomic"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/api/handlers"
	apimiddleware "github.com/quackgate/quackgate/internal/api/middleware"
	"github.com/quackgate/quackgate/internal/dispatch"
	"github.com/quackgate/quackgate/internal/lifecycle"
	"github.com/quackgate/quackgate/internal/metrics"
	"github.com/quackgate/quackgate/internal/pool"
	"github.com/quackgate/quackgate/internal/tiles"
)

// Dependencies holds everything NewRouter needs to wire the gateway's route
// tree.
type Dependencies struct {
	Dispatcher        *dispatch.Dispatcher
	Pool              *pool.Pool
	Lifecycle         *lifecycle.Manager
	Tiles             *tiles.Composer
	MetricsManager    *metrics.Manager
	ShutdownRequested *atomic.Bool

	// OnShutdown is invoked once POST /shutdown's grace period elapses and
	// the engine session has closed.
	OnShutdown func()
}

// NewRouter builds the gateway's chi router: command endpoints, the
// WebSocket endpoint, the tile pipeline, and a health check.
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID) // Must be before logger to capture request ID
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// HTTP compression - handles gzip, brotli, zstd, deflate automatically
	compressor, err := httpcompression.DefaultAdapter()
	if err != nil {
		log.Error().Err(err).Msg("failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	// CORS is permissive (*) per the Network Facade contract; there is no
	// session cookie here, so credentials are never enabled.
	r.Use(apimiddleware.PermissiveCORS())

	commandHandler := handlers.NewCommandHandler(deps.Dispatcher, deps.Pool, deps.Lifecycle, deps.ShutdownRequested, deps.OnShutdown)
	tilesHandler := handlers.NewTilesHandler(deps.Tiles)
	wsHandler := handlers.NewWSHandler(deps.Dispatcher)

	// GET / is shared between the plain query=<json> command form and the
	// WebSocket upgrade (both live at the root path per the Network Facade).
	r.Get("/", handlers.UpgradeOrDispatch(wsHandler, commandHandler))
	r.Post("/", commandHandler.Dispatch)
	r.Options("/", commandHandler.Preflight)

	r.Post("/cancel", commandHandler.Cancel)
	r.Post("/shutdown", commandHandler.Shutdown)
	r.Post("/connection", commandHandler.Connection)

	r.Get("/tiles/{tableName}/{columnName}/{z}/{x}/{y}", tilesHandler.Tile)
	r.Get("/tiles/{tableName}/{columnName}", tilesHandler.Metadata)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
