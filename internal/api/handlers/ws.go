// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	// CORS is permissive for this gateway; the facade has no session cookie
	// to protect against cross-origin WebSocket handshakes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler serves the long-lived WebSocket command endpoint: text frames
// carry JSON commands in, and JSON/text results and errors out; binary
// frames carry columnar (arrow) results.
type WSHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewWSHandler builds a WSHandler.
func NewWSHandler(d *dispatch.Dispatcher) *WSHandler {
	return &WSHandler{dispatcher: d}
}

type wsErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// UpgradeOrDispatch routes GET / to the WebSocket handler when the request
// carries a websocket Upgrade header, and to the plain query=<json> command
// dispatch otherwise; both are documented to share the root path.
func UpgradeOrDispatch(ws *WSHandler, cmd *CommandHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		cmd.Dispatch(w, r)
	}
}

// ServeHTTP upgrades the connection and processes commands until the peer
// disconnects. Commands are read in receive order, but each is dispatched
// on its own goroutine so a slow query does not block reading or
// completing the next one; writes are serialized with a mutex since a
// *websocket.Conn supports only one concurrent writer.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	ctx := r.Context()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var cmd dispatch.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			writeError(conn, &writeMu, "", apierr.Errorf(apierr.KindMissingField, "invalid command: %v", err))
			continue
		}
		if cmd.QueryID == "" {
			cmd.QueryID = dispatch.NewQueryID()
		}

		wg.Add(1)
		go func(cmd dispatch.Command) {
			defer wg.Done()
			h.handleCommand(ctx, conn, &writeMu, cmd)
		}(cmd)
	}

	wg.Wait()
}

func (h *WSHandler) handleCommand(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, cmd dispatch.Command) {
	result, err := h.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		writeError(conn, writeMu, cmd.QueryID, err)
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	switch result.Type {
	case "arrow":
		if err := conn.WriteMessage(websocket.BinaryMessage, result.Body); err != nil {
			log.Warn().Err(err).Msg("websocket write failed")
		}
	default:
		body := result.Body
		if len(body) == 0 {
			body = []byte(`{"success":true}`)
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			log.Warn().Err(err).Msg("websocket write failed")
		}
	}
}

func writeError(conn *websocket.Conn, writeMu *sync.Mutex, _ string, err error) {
	writeMu.Lock()
	defer writeMu.Unlock()

	body, marshalErr := json.Marshal(wsErrorBody{Success: false, Error: err.Error()})
	if marshalErr != nil {
		log.Warn().Err(marshalErr).Msg("marshal websocket error failed")
		return
	}
	if writeErr := conn.WriteMessage(websocket.TextMessage, body); writeErr != nil {
		log.Warn().Err(writeErr).Msg("websocket write failed")
	}
}
