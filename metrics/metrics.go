// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsGenerated tracks how many prompts one materialization produced
	SignalsGenerated = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paco_signals_generated",
		Help:    "Signals produced per subject materialization",
		Buckets: []float64{0, 1, 5, 10, 30, 60, 120, 365},
	})

	// Materializations counts schedule swaps by trigger
	Materializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paco_schedule_materializations_total",
		Help: "Schedule materializations by trigger",
	}, []string{"trigger"})

	// VersionConflicts counts optimistic swaps that lost a race
	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paco_schedule_version_conflicts_total",
		Help: "Experiment updates rejected because the version moved",
	})

	// Joins counts join attempts by result
	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paco_joins_total",
		Help: "Experiment join attempts by result",
	}, []string{"result"})

	// EventsSubmitted counts event submissions by result
	EventsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paco_events_submitted_total",
		Help: "Event submissions by result",
	}, []string{"result"})

	// ConditionalReads counts conditional GET outcomes
	ConditionalReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paco_conditional_reads_total",
		Help: "Conditional reads by outcome",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
