// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/rs/zerolog/log"

	"github.com/quackgate/quackgate/internal/apierr"
	"github.com/quackgate/quackgate/internal/cache"
	"github.com/quackgate/quackgate/internal/metrics"
	"github.com/quackgate/quackgate/internal/pool"
)

// Composer drives the dynamic tile pipeline: identifier validation, SQL
// composition over a buffered tile envelope, a best-effort RTREE index, and
// MVT encoding of the result.
type Composer struct {
	pool    *pool.Pool
	cache   cache.Cache
	metrics *metrics.Manager
}

// New builds a Composer. metrics may be nil.
func New(p *pool.Pool, c cache.Cache, m *metrics.Manager) *Composer {
	return &Composer{pool: p, cache: c, metrics: m}
}

// Tile runs the full pipeline for one XYZ tile and returns encoded MVT bytes.
func (c *Composer) Tile(ctx context.Context, tableName, columnName string, z, x, y uint32) ([]byte, error) {
	quotedTable, err := quoteIdentifier(tableName)
	if err != nil {
		return nil, err
	}
	quotedColumn, err := quoteIdentifier(columnName)
	if err != nil {
		return nil, err
	}

	env := computeEnvelope(z, x, y)
	query := composeTileSQL(quotedTable, quotedColumn, env)

	cacheKey := cache.Key(query.sql, "tile-mvt")
	body, err := cache.Retrieve(ctx, c.cache, cacheKey, true, func() ([]byte, error) {
		return c.renderTile(ctx, tableName, columnName, quotedTable, quotedColumn, query, env)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Composer) renderTile(ctx context.Context, tableName, columnName, quotedTable, quotedColumn string, query composedQuery, env envelope) ([]byte, error) {
	layerName := tableName
	idxName := indexName(tableName, columnName)
	_, _ = c.pool.RunDBTask(ctx, "", func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
		if _, err := cursor.ExecContext(taskCtx, rtreeIndexSQL(quotedTable, quotedColumn, idxName)); err != nil {
			log.Debug().Err(err).Str("table", layerName).Msg("RTREE index creation skipped/failed")
		}
		return nil, nil
	})

	wkts, err := c.pool.RunDBTask(ctx, "", func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
		rows, err := cursor.QueryContext(taskCtx, query.sql, query.args...)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindEngineError, err)
		}
		defer rows.Close()

		out := make([]string, 0, 1024)
		for rows.Next() {
			var w string
			if err := rows.Scan(&w); err != nil {
				return nil, apierr.Wrap(apierr.KindEngineError, err)
			}
			out = append(out, w)
		}
		if err := rows.Err(); err != nil {
			return nil, apierr.Wrap(apierr.KindEngineError, err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := encodeMVT(layerName, wkts.([]string), env)
	if c.metrics != nil {
		c.metrics.TileEncodeDuration.Observe(time.Since(start).Seconds())
	}
	return body, err
}

// encodeMVT parses each WKT (Web Mercator) row, reprojects it to WGS84 so
// orb's standard lon/lat-to-tile-pixel pipeline can quantize it against the
// exact tile bound, and marshals a single-layer MVT.
func encodeMVT(layerName string, wkts []string, env envelope) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, w := range wkts {
		geom, err := wkt.Unmarshal(w)
		if err != nil {
			log.Debug().Err(err).Msg("skipping unparsable tile geometry")
			continue
		}
		geographic := reprojectToWGS84(geom)
		feature := geojson.NewFeature(geographic)
		feature.Properties = geojson.Properties{}
		fc.Append(feature)
	}

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{layerName: fc})
	layers.ProjectToTile(env.tile)

	body, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("encode mvt: %w", err)
	}
	return body, nil
}

// Metadata describes a table/geometry-column pair for the tile metadata
// endpoint.
type Metadata struct {
	Center string  `json:"center,omitempty"`
	Bounds string  `json:"bounds,omitempty"`
	Name   string  `json:"name,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is one non-geometry column surfaced by the metadata endpoint.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Metadata computes the extent and field catalog for tableName/columnName.
// Returns an empty Metadata (zero Fields, empty Center/Bounds) when the
// table has no geometries to extent over, matching the pipeline's
// can't-compute-extent case.
func (c *Composer) Metadata(ctx context.Context, tableName, columnName string) (Metadata, error) {
	quotedTable, err := quoteIdentifier(tableName)
	if err != nil {
		return Metadata{}, err
	}
	quotedColumn, err := quoteIdentifier(columnName)
	if err != nil {
		return Metadata{}, err
	}

	extentSQL := fmt.Sprintf(`
WITH envelope AS (
	SELECT ST_Envelope(%s) AS envelope FROM %s
)
SELECT MIN(ST_XMin(envelope)), MIN(ST_YMin(envelope)), MAX(ST_XMax(envelope)), MAX(ST_YMax(envelope))
FROM envelope`, quotedColumn, quotedTable)

	raw, err := c.pool.RunDBTask(ctx, "", func(taskCtx context.Context, cursor *sql.Conn) (any, error) {
		var minX, minY, maxX, maxY sql.NullFloat64
		row := cursor.QueryRowContext(taskCtx, extentSQL)
		if err := row.Scan(&minX, &minY, &maxX, &maxY); err != nil {
			return nil, apierr.Wrap(apierr.KindEngineError, err)
		}
		if !minX.Valid || !minY.Valid || !maxX.Valid || !maxY.Valid {
			return Metadata{}, nil
		}

		schema, table := splitSchemaTable(tableName)
		fields, err := c.fetchFields(taskCtx, cursor, schema, table, columnName)
		if err != nil {
			log.Debug().Err(err).Msg("failed to fetch tile metadata field catalog")
			fields = nil
		}

		centerLon := (minX.Float64 + maxX.Float64) / 2
		centerLat := (minY.Float64 + maxY.Float64) / 2

		return Metadata{
			Center: formatCenter(centerLon, centerLat),
			Bounds: formatCoords(minX.Float64, minY.Float64) + "," + formatCoords(maxX.Float64, maxY.Float64),
			Name:   tableName + "." + columnName,
			Fields: fields,
		}, nil
	})
	if err != nil {
		return Metadata{}, err
	}
	return raw.(Metadata), nil
}

func (c *Composer) fetchFields(ctx context.Context, cursor *sql.Conn, schema, table, geometryColumn string) ([]Field, error) {
	rows, err := cursor.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			return nil, err
		}
		if name == "" || equalFold(name, geometryColumn) {
			continue
		}
		fields = append(fields, Field{Name: name, Type: dtype})
	}
	return fields, rows.Err()
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func formatCoords(a, b float64) string {
	return strconv.FormatFloat(a, 'f', 6, 64) + "," + strconv.FormatFloat(b, 'f', 6, 64)
}

// formatCenter renders the tile metadata center as "lon,lat,0", matching
// the zoom-hint trailing zero the original endpoint emits.
func formatCenter(lon, lat float64) string {
	return formatCoords(lon, lat) + ",0"
}

func reprojectToWGS84(geom orb.Geometry) orb.Geometry {
	return project.MercatorToWGS84(geom)
}
