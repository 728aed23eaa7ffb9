// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cache implements the content-addressed result cache: a
// fingerprint of the SQL text plus a logical output type maps to an opaque
// bytes-or-text payload, with an opt-in persistence policy per command.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Cache is satisfied by both the in-memory and the persistent backend.
// Presence is always communicated via the explicit found bool — never by
// checking whether the returned value is empty — so a legitimately
// zero-length cached payload is still reported as a hit.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
}

// Key computes the deterministic fingerprint for a SQL string and a logical
// output type ("arrow", "json", "tile-mvt", ...). Two commands with
// identical sql and typ always produce the same key, across runs and
// processes.
func Key(sql, typ string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:]) + "." + typ
}

// Produce computes a value on a cache miss.
type Produce func() ([]byte, error)

// Retrieve returns the cached value for key if present; otherwise it calls
// produce, stores the result only when persist is true, and returns it.
func Retrieve(ctx context.Context, c Cache, key string, persist bool, produce Produce) ([]byte, error) {
	if value, found, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if found {
		return value, nil
	}

	value, err := produce()
	if err != nil {
		return nil, err
	}

	if persist {
		if err := c.Put(ctx, key, value); err != nil {
			return nil, err
		}
	}

	return value, nil
}
