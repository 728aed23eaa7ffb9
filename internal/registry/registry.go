// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package registry tracks in-flight queries by identifier so they can be
// targeted or bulk-interrupted from outside the worker that is running them.
package registry

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Record describes one in-flight query.
type Record struct {
	QueryID   string
	Cursor    *sql.Conn
	Cancel    context.CancelFunc
	StartedAt time.Time
}

// Registry maps queryId -> Record, guarded by a single mutex held only for
// map updates, never across engine calls.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Register inserts rec under queryId. The caller must have already ensured
// no other in-flight record uses the same id.
func (r *Registry) Register(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.QueryID] = rec
}

// Unregister removes queryId's record, if any.
func (r *Registry) Unregister(queryID string) {
	if queryID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, queryID)
}

// Lookup returns the record for queryId, if still in flight.
func (r *Registry) Lookup(queryID string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[queryID]
	return rec, ok
}

// Len reports the number of in-flight records, mainly for metrics/tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Drain removes and returns every current record, clearing the registry.
// Used by CancelAll during reconnection and shutdown.
func (r *Registry) Drain() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		drained = append(drained, rec)
	}
	r.records = make(map[string]*Record)
	return drained
}
