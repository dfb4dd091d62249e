package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// GenerationRequests counts generation calls by provider and outcome kind ("ok" on success).
	GenerationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_generation_requests_total",
		Help: "Total number of image generation calls by provider and outcome",
	}, []string{"provider", "outcome"})

	// GenerationLatency records end-to-end generation latency per provider.
	GenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_generation_latency_seconds",
		Help:    "Image generation latency in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"provider"})

	// InteractionOps counts like/comment operations by op and outcome.
	InteractionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_interaction_ops_total",
		Help: "Total number of interaction operations by op and outcome",
	}, []string{"op", "outcome"})

	// EventPublishFailures counts events that could not be delivered to the bus.
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_event_publish_failures_total",
		Help: "Total number of interaction events that failed to publish",
	}, []string{"bus", "type"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_active_websockets",
		Help: "Number of open event stream connections",
	})

	// WebSocketBackpressureDrops counts messages dropped for slow or closed clients.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_websocket_backpressure_drops_total",
		Help: "Total number of websocket messages dropped",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// ObserveGeneration records the outcome and latency of one generation call.
func ObserveGeneration(provider, outcome string, start time.Time) {
	GenerationRequests.WithLabelValues(provider, outcome).Inc()
	GenerationLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveInteraction records the outcome of one interaction operation.
func ObserveInteraction(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	InteractionOps.WithLabelValues(op, outcome).Inc()
}
