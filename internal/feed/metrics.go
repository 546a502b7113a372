package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_feed_loads_total",
			Help: "Feed loads by outcome.",
		},
		[]string{"outcome"}, // outcome: live, fallback_unset, fallback_unreachable, malformed, canceled
	)

	loadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessions_feed_load_duration_seconds",
			Help:    "Time taken to retrieve and normalize the feed.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	rowsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_feed_rows_rejected_total",
			Help: "Feed rows dropped for missing mandatory fields.",
		},
	)

	sessionsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_feed_records",
			Help: "Number of sessions in the most recently applied load.",
		},
	)
)
