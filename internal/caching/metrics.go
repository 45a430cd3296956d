// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package caching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the permission cache and the resolutions it triggers.
var (
	// lookupsTotal counts cache lookups by outcome ("hit"/"miss").
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permforge_cache_lookups_total",
		Help: "Total number of permission cache lookups by outcome",
	}, []string{"outcome"})

	// resolveDuration tracks inheritance resolution latency on cache misses.
	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "permforge_resolve_duration_seconds",
		Help:    "Histogram of inheritance resolution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// invalidationsTotal counts explicit cache invalidations.
	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permforge_cache_invalidations_total",
		Help: "Total number of permission cache invalidations",
	})
)
