// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/dispatch"
	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/lifecycle"
	"github.com/quackgate/quackgate/internal/pool"
	"github.com/quackgate/quackgate/internal/registry"
)

func TestUpgradeOrDispatch_PlainGETBypassesWebSocket(t *testing.T) {
	h, _ := newTestHandler()
	ws := NewWSHandler(h.dispatcher)

	req := httptest.NewRequest(http.MethodGet, "/?query=%7B%22type%22%3A%22exec%22%2C%22sql%22%3A%22SELECT+1%22%7D", nil)
	w := httptest.NewRecorder()

	UpgradeOrDispatch(ws, h)(w, req)

	assert.NotEqual(t, http.StatusSwitchingProtocols, w.Code)
}

func TestWSHandler_RoundTripsInvalidCommandAsError(t *testing.T) {
	reg := registry.New()
	p := pool.New(2, func() *engine.Session { return nil }, reg)
	c := cache.NewMemoryCache(0)
	var shuttingDown atomic.Bool
	d := dispatch.New(p, c, nil, &shuttingDown)
	_ = lifecycle.New(nil, p, c, &shuttingDown)
	ws := NewWSHandler(d)

	server := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)

	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Contains(t, string(data), `"success":false`)
}
