// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus instrumentation for the gateway's
// dispatcher, worker pool, cache, and tile pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Manager owns the process's metrics registry and the domain metric vectors
// every other package increments directly.
type Manager struct {
	registry *prometheus.Registry

	QueriesTotal      *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	CacheHitsTotal     *prometheus.CounterVec
	TileEncodeDuration prometheus.Histogram
	ActiveWorkers      prometheus.Gauge
}

// NewMetricsManager creates a fresh registry with the standard Go/process
// collectors plus the gateway's own metric vectors registered.
//
// The syncState/reserved parameters mirror the teacher's NewManager(a, b)
// shape (dependencies a collector pulls from); this gateway's collectors are
// push-style (incremented inline by the dispatcher/pool/tiles packages), so
// both parameters are accepted for call-site symmetry but unused.
func NewMetricsManager(_ any, _ any) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quackgate_queries_total",
			Help: "Total dispatched commands by type and outcome.",
		}, []string{"type", "outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quackgate_query_duration_seconds",
			Help:    "Duration of dispatched commands by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quackgate_cache_results_total",
			Help: "Cache lookups by outcome (hit/miss).",
		}, []string{"outcome"}),
		TileEncodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quackgate_tile_encode_duration_seconds",
			Help:    "Duration of vector tile SQL composition and MVT encoding.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quackgate_active_workers",
			Help: "Number of worker pool slots currently executing a query.",
		}),
	}

	registry.MustRegister(m.QueriesTotal, m.QueryDuration, m.CacheHitsTotal, m.TileEncodeDuration, m.ActiveWorkers)

	log.Info().Msg("metrics manager initialized")

	return m
}

// GetRegistry returns the underlying Prometheus registry.
func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
