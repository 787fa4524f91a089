// Package telemetry exposes Prometheus counters for the correlation pipeline.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SignalsIngested counts signals accepted into the pipeline
	SignalsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redblue",
			Name:      "signals_ingested_total",
			Help:      "Total number of signals accepted for processing",
		},
		[]string{"source"},
	)

	// SignalsDropped counts signals rejected before processing
	SignalsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redblue",
			Name:      "signals_dropped_total",
			Help:      "Total number of signals dropped",
		},
		[]string{"reason"},
	)

	// MatchesTotal counts rule matches produced by the matcher
	MatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redblue",
			Name:      "matches_total",
			Help:      "Total number of detection rule matches",
		},
		[]string{"rule_id"},
	)

	// AlertsCreated counts newly created alerts
	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redblue",
			Name:      "alerts_created_total",
			Help:      "Total number of alerts created",
		},
		[]string{"severity"},
	)

	// AlertsUpdated counts dedup aggregations into existing alerts
	AlertsUpdated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redblue",
			Name:      "alerts_updated_total",
			Help:      "Total number of alert aggregation updates",
		},
		[]string{"severity"},
	)

	once sync.Once
)

// InitMetrics registers all counters with the default Prometheus registry.
// Idempotent; repeated calls are no-ops.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(SignalsIngested)
		prometheus.DefaultRegisterer.Register(SignalsDropped)
		prometheus.DefaultRegisterer.Register(MatchesTotal)
		prometheus.DefaultRegisterer.Register(AlertsCreated)
		prometheus.DefaultRegisterer.Register(AlertsUpdated)
	})
}
