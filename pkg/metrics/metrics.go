package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global metric handles. 'promauto' registers them on the default registry
// at package load, so importers just increment.

var (
	// HTTP requests, labeled by method, route pattern and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starfielddb_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// Server response time per route.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "starfielddb_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
			// From sub-millisecond catalog lookups to multi-second
			// regenerations of very large fields.
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Points currently held per field.
	TotalPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "starfielddb_points_total",
			Help: "Total number of points held per field",
		},
		[]string{"field"},
	)

	// Nearest-point searches, labeled by kind ("target" or "ray").
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starfielddb_searches_total",
			Help: "Total number of nearest-point searches executed",
		},
		[]string{"kind"},
	)

	// Search latency by kind. Coarse strides keep these flat as fields grow.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starfielddb_search_duration_seconds",
			Help:    "Duration of nearest-point searches in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	// Ray picks by outcome ("hit" or "miss").
	PicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starfielddb_picks_total",
			Help: "Total number of ray picks by outcome",
		},
		[]string{"outcome"},
	)

	// Anchor assignments dispatched to the background worker.
	OffloadDispatchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starfielddb_offload_dispatch_total",
			Help: "Total number of anchor assignments dispatched to a background worker",
		},
	)

	// Offload attempts that fell back to the synchronous path.
	OffloadFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starfielddb_offload_fallback_total",
			Help: "Total number of anchor assignments that fell back to the synchronous path",
		},
	)

	// Worker results discarded because the field was regenerated while the
	// request was in flight.
	OffloadStaleTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "starfielddb_offload_stale_total",
			Help: "Total number of worker results discarded due to a stale generation",
		},
	)
)
