// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tiles

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

const (
	tileBufferPixels  = 20.0
	tileSimplifyRatio = 0.75
	reservoirRows     = 50000
	reservoirSeed     = 4321
)

// envelope describes the geometry in play for one tile request, computed
// entirely in Go from the tile coordinate rather than via the engine's own
// ST_TileEnvelope, so the worker receives a single ready-to-run statement.
type envelope struct {
	tile maptile.Tile

	// exactMerc is the tile's own Web Mercator bound, unbuffered; used both
	// as the MVT quantization bounds and as the basis for meters-per-pixel.
	exactMerc orb.Bound

	// bufferedMerc is exactMerc expanded by the anti-clipping margin.
	bufferedMerc orb.Bound

	// bufferedGeographic is bufferedMerc reprojected to WGS84/CRS84, used
	// for the ST_Intersects filter against the (geographic) source column.
	bufferedGeographic orb.Bound

	metersPerPixel float64
}

// computeEnvelope derives the tile's Web Mercator and buffered geographic
// bounds for z/x/y, following SPEC_FULL.md's Dynamic Tile Pipeline steps 1-4.
func computeEnvelope(z, x, y uint32) envelope {
	tile := maptile.New(x, y, maptile.Zoom(z))
	geoBound := tile.Bound()

	mercMin := project.WGS84ToMercator(orb.Point{geoBound.Min[0], geoBound.Min[1]}).(orb.Point)
	mercMax := project.WGS84ToMercator(orb.Point{geoBound.Max[0], geoBound.Max[1]}).(orb.Point)
	exactMerc := orb.Bound{Min: mercMin, Max: mercMax}

	metersPerPixel := (exactMerc.Max[0] - exactMerc.Min[0]) / 256.0
	bufferMeters := tileBufferPixels * metersPerPixel

	bufferedMerc := orb.Bound{
		Min: orb.Point{exactMerc.Min[0] - bufferMeters, exactMerc.Min[1] - bufferMeters},
		Max: orb.Point{exactMerc.Max[0] + bufferMeters, exactMerc.Max[1] + bufferMeters},
	}

	bufferedGeoMin := project.MercatorToWGS84(bufferedMerc.Min).(orb.Point)
	bufferedGeoMax := project.MercatorToWGS84(bufferedMerc.Max).(orb.Point)
	bufferedGeographic := orb.Bound{Min: bufferedGeoMin, Max: bufferedGeoMax}

	return envelope{
		tile:               tile,
		exactMerc:          exactMerc,
		bufferedMerc:       bufferedMerc,
		bufferedGeographic: bufferedGeographic,
		metersPerPixel:     metersPerPixel,
	}
}

// boundWKT renders an orb.Bound as a closed WKT POLYGON ring.
func boundWKT(b orb.Bound) string {
	return fmt.Sprintf(
		"POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		b.Min[0], b.Min[1],
		b.Max[0], b.Min[1],
		b.Max[0], b.Max[1],
		b.Min[0], b.Max[1],
		b.Min[0], b.Min[1],
	)
}

// composedQuery holds the final SQL statement plus the bound arguments it
// needs, and the envelope metadata the caller uses for MVT quantization.
type composedQuery struct {
	sql      string
	args     []any
	envelope envelope
}

// composeTileSQL builds the single statement that selects WKT geometries for
// one XYZ tile, following SPEC_FULL.md's Dynamic Tile Pipeline steps 5-9.
// quotedTable and quotedColumn must already have passed quoteIdentifier.
func composeTileSQL(quotedTable, quotedColumn string, env envelope) composedQuery {
	tolerance := tileSimplifyRatio * env.metersPerPixel

	sql := fmt.Sprintf(`
WITH candidates AS (
	SELECT ST_Transform(%s, 'CRS84', 'EPSG:3857') AS g3857
	FROM %s
	WHERE ST_Intersects(%s, ST_GeomFromText(?))
	USING SAMPLE reservoir(%d ROWS)
	REPEATABLE (%d)
), simplified AS (
	SELECT ST_SimplifyPreserveTopology(g3857, ?) AS gs FROM candidates
), clipped AS (
	SELECT ST_Intersection(gs, ST_GeomFromText(?)) AS gc FROM simplified
)
SELECT ST_AsText(gc) AS wkt FROM clipped WHERE NOT ST_IsEmpty(gc)`,
		quotedColumn, quotedTable, quotedColumn, reservoirRows, reservoirSeed)

	return composedQuery{
		sql: sql,
		args: []any{
			boundWKT(env.bufferedGeographic),
			tolerance,
			boundWKT(env.bufferedMerc),
		},
		envelope: env,
	}
}

// rtreeIndexSQL returns the best-effort index-creation statement issued
// before the main tile query.
func rtreeIndexSQL(quotedTable, quotedColumn, idxName string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s" ON %s USING RTREE (%s)`, idxName, quotedTable, quotedColumn)
}
