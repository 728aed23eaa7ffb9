// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httpx implements the gateway's response envelope: the three
// success framings (done/arrow/json) and the one error shape, each carrying
// the X-Query-ID header when a query identifier is known.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/dispatch"
)

// errorBody is the wire shape for every non-2xx response.
type errorBody struct {
	Success bool      `json:"success"`
	Error   errorInfo `json:"error"`
}

type errorInfo struct {
	Message string `json:"message"`
}

// WriteResult frames a dispatch.Result onto w per its Type, setting
// Content-Type and X-Query-ID.
func WriteResult(w http.ResponseWriter, result dispatch.Result) {
	if result.QueryID != "" {
		w.Header().Set("X-Query-ID", result.QueryID)
	}

	switch result.Type {
	case "done":
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		return
	default:
		if result.ContentType != "" {
			w.Header().Set("Content-Type", result.ContentType)
		}
		w.WriteHeader(http.StatusOK)
		if len(result.Body) > 0 {
			if _, err := w.Write(result.Body); err != nil {
				log.Warn().Err(err).Msg("write response body failed")
			}
		}
	}
}

// WriteError maps err to the gateway's error envelope and an HTTP status,
// logging server-side (5xx) failures.
func WriteError(w http.ResponseWriter, queryID string, err error) {
	if queryID != "" {
		w.Header().Set("X-Query-ID", queryID)
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := errorBody{Success: false, Error: errorInfo{Message: err.Error()}}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Warn().Err(encErr).Msg("encode error response failed")
	}
}

// statusFor maps a dispatched error to an HTTP status: 400 for command,
// engine and cancellation errors, 503 while shutting down, 500 otherwise.
// The 404 for an unknown query id is written by the cancel handler itself.
func statusFor(err error) int {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}

	switch apiErr.Kind {
	case apierr.KindUnknownCommand, apierr.KindInvalidIdentifier, apierr.KindMissingField, apierr.KindCancelled:
		return http.StatusBadRequest
	case apierr.KindShuttingDown:
		return http.StatusServiceUnavailable
	case apierr.KindEngineError:
		return http.StatusBadRequest
	case apierr.KindNoEngine, apierr.KindIOError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a 200 JSON response.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode json response failed")
	}
}
