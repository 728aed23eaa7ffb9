// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// rowsToArrowIPC drains rows into a single Arrow record batch and returns its
// IPC stream framing, the wire shape the Network Facade sends for the arrow
// command type.
func rowsToArrowIPC(rows *sql.Rows) ([]byte, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, engineError(err)
	}

	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name(), Type: arrowTypeFor(c), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	scanDest := make([]any, len(cols))
	for i := range scanDest {
		scanDest[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return nil, engineError(err)
		}
		for i, d := range scanDest {
			appendValue(builder.Field(i), *(d.(*any)))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, engineError(err)
	}

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write arrow ipc: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow ipc writer: %w", err)
	}
	return buf.Bytes(), nil
}

// arrowTypeFor maps a database/sql column type to the closest Arrow type.
// Anything it doesn't recognize falls back to a string column rather than
// failing the query, since the engine's type catalog is broader than the
// handful of scalar kinds worth a dedicated Arrow builder here.
func arrowTypeFor(c *sql.ColumnType) arrow.DataType {
	switch c.DatabaseTypeName() {
	case "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return arrow.PrimitiveTypes.Int64
	case "FLOAT", "DOUBLE", "DECIMAL":
		return arrow.PrimitiveTypes.Float64
	case "DATE", "TIMESTAMP", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP_TZ":
		return arrow.FixedWidthTypes.Timestamp_us
	case "BLOB":
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(b array.Builder, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch builder := b.(type) {
	case *array.BooleanBuilder:
		if bv, ok := v.(bool); ok {
			builder.Append(bv)
			return
		}
		builder.AppendNull()
	case *array.Int64Builder:
		switch n := v.(type) {
		case int64:
			builder.Append(n)
		case int32:
			builder.Append(int64(n))
		case float64:
			builder.Append(int64(n))
		default:
			builder.AppendNull()
		}
	case *array.Float64Builder:
		switch n := v.(type) {
		case float64:
			builder.Append(n)
		case float32:
			builder.Append(float64(n))
		default:
			builder.AppendNull()
		}
	case *array.TimestampBuilder:
		if t, ok := v.(time.Time); ok {
			builder.Append(arrow.Timestamp(t.UnixMicro()))
			return
		}
		builder.AppendNull()
	case *array.BinaryBuilder:
		if bs, ok := v.([]byte); ok {
			builder.Append(bs)
			return
		}
		builder.AppendNull()
	case *array.StringBuilder:
		builder.Append(stringifyValue(v))
	default:
		b.AppendNull()
	}
}

func stringifyValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(s)
	}
}

// rowsToJSON drains rows into a JSON array of objects, one per row, keyed by
// column name.
func rowsToJSON(rows *sql.Rows) ([]byte, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, engineError(err)
	}

	out := make([]map[string]any, 0, 64)
	scanDest := make([]any, len(cols))
	for i := range scanDest {
		scanDest[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return nil, engineError(err)
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			row[name] = jsonSafe(*(scanDest[i].(*any)))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, engineError(err)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal json rows: %w", err)
	}
	return body, nil
}

// jsonSafe converts driver-returned values that encoding/json cannot handle
// directly (raw byte slices, time values) into JSON-friendly equivalents.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return t
	}
}
