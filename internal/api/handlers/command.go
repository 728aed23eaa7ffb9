// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package handlers implements the Network Facade: thin HTTP handlers that
// decode a Command, hand it to the Dispatcher or Lifecycle Manager, and
// frame the result per the wire format in SPEC_FULL.md §6.
package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/api/httpx"
	"github.com/quackgate/quackgate/internal/dispatch"
	"github.com/quackgate/quackgate/internal/lifecycle"
	"github.com/quackgate/quackgate/internal/pool"
)

// CommandHandler wires the command endpoints (POST/GET /, /cancel,
// /shutdown, /connection) to the dispatcher, pool, and lifecycle manager.
type CommandHandler struct {
	dispatcher        *dispatch.Dispatcher
	pool              *pool.Pool
	lifecycle         *lifecycle.Manager
	shutdownRequested *atomic.Bool
	onShutdown        func()
}

// NewCommandHandler builds a CommandHandler. onShutdown is invoked once the
// graceful shutdown delay elapses, after the engine session has closed; it
// is expected to stop the HTTP listener and exit the process.
func NewCommandHandler(d *dispatch.Dispatcher, p *pool.Pool, m *lifecycle.Manager, shutdownRequested *atomic.Bool, onShutdown func()) *CommandHandler {
	return &CommandHandler{dispatcher: d, pool: p, lifecycle: m, shutdownRequested: shutdownRequested, onShutdown: onShutdown}
}

// Dispatch serves POST / and GET /?query=<json>.
func (h *CommandHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	cmd, err := decodeCommand(r)
	if err != nil {
		httpx.WriteError(w, "", err)
		return
	}
	if cmd.QueryID == "" {
		cmd.QueryID = dispatch.NewQueryID()
	}

	if cmd.Type == dispatch.TypeSaveProjectAs {
		h.saveProjectAs(w, r, cmd)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		httpx.WriteError(w, cmd.QueryID, err)
		return
	}
	httpx.WriteResult(w, result)
}

// Preflight serves OPTIONS / for CORS preflight requests that the cors
// middleware itself doesn't short-circuit.
func (h *CommandHandler) Preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// saveProjectAs is handled outside the dispatcher: it quiesces and swaps the
// engine handle via the Lifecycle Manager directly, per the Dispatch
// rejection's documented routing.
func (h *CommandHandler) saveProjectAs(w http.ResponseWriter, r *http.Request, cmd dispatch.Command) {
	if h.shutdownRequested.Load() {
		httpx.WriteError(w, cmd.QueryID, apierr.ShuttingDown())
		return
	}
	if cmd.SourcePath == "" || cmd.TargetPath == "" {
		httpx.WriteError(w, cmd.QueryID, apierr.MissingField("sourcePath/targetPath"))
		return
	}
	if err := h.lifecycle.SaveProjectAs(r.Context(), cmd.SourcePath, cmd.TargetPath); err != nil {
		httpx.WriteError(w, cmd.QueryID, err)
		return
	}
	httpx.WriteResult(w, dispatch.Result{Type: "done", QueryID: cmd.QueryID})
}

type cancelRequest struct {
	QueryID string `json:"queryId"`
}

// Cancel serves POST /cancel.
func (h *CommandHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, "", apierr.Errorf(apierr.KindMissingField, "invalid cancel request body: %v", err))
		return
	}
	if req.QueryID == "" {
		httpx.WriteError(w, "", apierr.MissingField("queryId"))
		return
	}
	if !h.pool.CancelQuery(req.QueryID) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"message": "unknown query id"},
		})
		return
	}
	w.WriteHeader(http.StatusOK)
}

// gracefulShutdownDelay gives in-flight responses a moment to flush before
// the engine session closes.
const gracefulShutdownDelay = 1 * time.Second

// Shutdown serves POST /shutdown: it enqueues graceful shutdown and returns
// immediately, per §4.6.
func (h *CommandHandler) Shutdown(w http.ResponseWriter, _ *http.Request) {
	h.shutdownRequested.Store(true)
	h.lifecycle.ScheduleShutdown(gracefulShutdownDelay, func() {
		if h.onShutdown != nil {
			h.onShutdown()
		}
	})
	w.WriteHeader(http.StatusOK)
}

type connectionRequest struct {
	Action string `json:"action"`
	DBPath string `json:"dbPath"`
}

// Connection serves POST /connection: admin-scoped close/reopen of the
// engine handle.
func (h *CommandHandler) Connection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, "", apierr.Errorf(apierr.KindMissingField, "invalid connection request body: %v", err))
		return
	}

	switch req.Action {
	case "close":
		if err := h.lifecycle.Deactivate(r.Context()); err != nil {
			httpx.WriteError(w, "", err)
			return
		}
	case "reopen":
		dbPath := req.DBPath
		if dbPath == "" {
			if sess := h.lifecycle.Session(); sess != nil {
				dbPath = sess.DatabasePath()
			}
		}
		if dbPath == "" {
			httpx.WriteError(w, "", apierr.MissingField("dbPath"))
			return
		}
		if err := h.lifecycle.Activate(r.Context(), dbPath); err != nil {
			httpx.WriteError(w, "", err)
			return
		}
	default:
		httpx.WriteError(w, "", apierr.Errorf(apierr.KindMissingField, "unknown connection action %q", req.Action))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// decodeCommand reads a Command from the POST body, or from the query=
// parameter for GET requests.
func decodeCommand(r *http.Request) (dispatch.Command, error) {
	var cmd dispatch.Command

	if r.Method == http.MethodGet {
		raw := r.URL.Query().Get("query")
		if raw == "" {
			return cmd, apierr.MissingField("query")
		}
		decoded, err := url.QueryUnescape(raw)
		if err != nil {
			decoded = raw
		}
		if err := json.Unmarshal([]byte(decoded), &cmd); err != nil {
			return cmd, apierr.Errorf(apierr.KindMissingField, "invalid query command: %v", err)
		}
		return cmd, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		log.Debug().Err(err).Msg("decode command body failed")
		return cmd, apierr.Errorf(apierr.KindMissingField, "invalid command body: %v", err)
	}
	return cmd, nil
}
