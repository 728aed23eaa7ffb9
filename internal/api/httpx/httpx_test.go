// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package httpx

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/dispatch"
)

func TestWriteResult_Done(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, dispatch.Result{Type: "done", QueryID: "q1"})

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "q1", w.Header().Get("X-Query-ID"))
	assert.Empty(t, w.Body.Bytes())
}

func TestWriteResult_Arrow(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, dispatch.Result{Type: "arrow", ContentType: "application/octet-stream", Body: []byte("abc")})

	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "abc", w.Body.String())
}

func TestWriteResult_NoQueryIDOmitsHeader(t *testing.T) {
	w := httptest.NewRecorder()
	WriteResult(w, dispatch.Result{Type: "done"})

	_, present := w.Result().Header["X-Query-Id"]
	assert.False(t, present)
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err            error
		expectedStatus int
	}{
		{apierr.MissingField("sql"), 400},
		{apierr.InvalidIdentifier("bad"), 400},
		{apierr.Cancelled(), 400},
		{apierr.ShuttingDown(), 503},
		{apierr.Wrap(apierr.KindEngineError, errors.New("syntax error")), 400},
		{apierr.NoEngine(), 500},
		{apierr.Wrap(apierr.KindIOError, errors.New("disk full")), 500},
		{errors.New("untyped"), 500},
	}

	for _, c := range cases {
		w := httptest.NewRecorder()
		WriteError(w, "", c.err)
		assert.Equal(t, c.expectedStatus, w.Code, "error %v", c.err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
	}
}

func TestWriteError_CarriesQueryID(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "q2", apierr.NoEngine())
	assert.Equal(t, "q2", w.Header().Get("X-Query-ID"))
}
