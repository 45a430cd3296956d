// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package actionlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permforge_actionlog_dropped_total",
		Help: "Entries dropped because the action log queue was full",
	})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permforge_actionlog_failures_total",
		Help: "Action log write failures",
	}, []string{"reason"})

	queuedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "permforge_actionlog_queued",
		Help: "Entries currently queued for writing",
	})
)
