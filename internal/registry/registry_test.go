// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegisterLookupUnregister(t *testing.T) {
	r := New()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &Record{QueryID: "q1", Cancel: cancel, StartedAt: time.Now()}
	r.Register(rec)

	got, ok := r.Lookup("q1")
	assert.True(t, ok)
	assert.Same(t, rec, got)
	assert.Equal(t, 1, r.Len())

	r.Unregister("q1")
	_, ok = r.Lookup("q1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestLookupMissing(t *testing.T) {
	r := New()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestDrainClearsRegistry(t *testing.T) {
	r := New()

	for _, id := range []string{"a", "b", "c"} {
		r.Register(&Record{QueryID: id, StartedAt: time.Now()})
	}
	assert.Equal(t, 3, r.Len())

	drained := r.Drain()
	assert.Len(t, drained, 3)
	assert.Equal(t, 0, r.Len())
}

func TestNoTwoRecordsShareQueryID(t *testing.T) {
	r := New()
	r.Register(&Record{QueryID: "dup", StartedAt: time.Now()})
	r.Register(&Record{QueryID: "dup", StartedAt: time.Now().Add(time.Second)})

	assert.Equal(t, 1, r.Len(), "second registration must replace, not duplicate, the first")
}
