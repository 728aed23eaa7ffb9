// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pool

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quackgate/quackgate/internal/engine"
	"github.com/quackgate/quackgate/internal/registry"
)

func noSession() *engine.Session { return nil }

func TestRunDBTaskNoEngine(t *testing.T) {
	p := New(4, noSession, registry.New())

	_, err := p.RunDBTask(context.Background(), "q1", func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
		t.Fatal("execute must not run without a session")
		return nil, nil
	})

	assert.ErrorIs(t, err, ErrNoEngine)
}

func TestCancelQueryUnknownID(t *testing.T) {
	p := New(4, noSession, registry.New())

	assert.False(t, p.CancelQuery("missing"))
}

func TestCancelQueryKnownIDCancelsContext(t *testing.T) {
	p := New(4, noSession, registry.New())

	_, cancel := context.WithCancel(context.Background())
	cancelled := false
	p.Registry().Register(&registry.Record{
		QueryID: "q1",
		Cancel: func() {
			cancelled = true
			cancel()
		},
	})

	ok := p.CancelQuery("q1")
	assert.True(t, ok)
	assert.True(t, cancelled)
}

func TestCancelAllDrainsRegistry(t *testing.T) {
	p := New(4, noSession, registry.New())

	p.Registry().Register(&registry.Record{QueryID: "a", Cancel: func() {}})
	p.Registry().Register(&registry.Record{QueryID: "b", Cancel: func() {}})
	assert.Equal(t, 2, p.Registry().Len())

	p.CancelAll()

	assert.Equal(t, 0, p.Registry().Len())
}

func TestNewEnforcesMinimumWorkers(t *testing.T) {
	p := New(1, noSession, registry.New())
	assert.Equal(t, 4, cap(p.sem))
}
