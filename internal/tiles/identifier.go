// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tiles implements the dynamic XYZ vector-tile pipeline: SQL
// composition over a buffered Web Mercator tile envelope, MVT encoding, and
// the companion tile metadata lookup.
package tiles

import (
	"strings"

	"github.com/quackgate/quackgate/internal/apierr"
)

// quoteIdentifier validates and double-quotes a possibly schema-qualified
// SQL identifier ("schema.table" or "table"). Every dot-separated segment
// must be non-empty and consist only of ASCII letters, digits, and
// underscore; anything else is rejected rather than interpolated into SQL.
func quoteIdentifier(identifier string) (string, error) {
	parts := strings.Split(identifier, ".")
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		if !isSafeSegment(part) {
			return "", apierr.InvalidIdentifier(identifier)
		}
		quoted = append(quoted, `"`+part+`"`)
	}
	return strings.Join(quoted, "."), nil
}

func isSafeSegment(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// splitSchemaTable splits "schema.table" into its two parts, defaulting the
// schema to "main" when unqualified, matching the engine's default schema.
func splitSchemaTable(tableName string) (schema, table string) {
	if idx := strings.Index(tableName, "."); idx >= 0 {
		return tableName[:idx], tableName[idx+1:]
	}
	return "main", tableName
}

// indexName derives a stable RTREE index name for a table/column pair.
func indexName(tableName, columnName string) string {
	sanitized := strings.ReplaceAll(tableName, ".", "_")
	return "idx_rtree_" + sanitized + "_" + columnName
}
