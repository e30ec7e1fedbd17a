// Package metrics registers the feed's Prometheus collectors and exposes small
// recording helpers so callers never touch label plumbing directly.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connector outcomes.
const (
	OutcomeHit   = "hit"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
	OutcomeOpen  = "open"
)

// Buffer load outcomes.
const (
	LoadLoaded  = "loaded"
	LoadFailed  = "failed"
	LoadStale   = "stale"
	LoadDeduped = "deduped"
)

var (
	connectorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_connector_requests_total",
		Help: "Search connector calls by outcome (hit, empty, error, open)",
	}, []string{"connector", "outcome"})

	connectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reels_connector_duration_seconds",
		Help:    "Search connector call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	}, []string{"connector"})

	cascadeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_cascade_results_total",
		Help: "Cascade searches by outcome (hit, empty)",
	}, []string{"cascade", "outcome"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reels_circuit_breaker_state",
		Help: "Circuit breaker state per connector (1 for the active state)",
	}, []string{"connector", "state"})

	bufferLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_buffer_loads_total",
		Help: "Buffer slot loads by outcome (loaded, failed, stale, deduped)",
	}, []string{"outcome"})

	bufferResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reels_buffer_resident_slots",
		Help: "Number of slots currently resident in the buffer window",
	})

	feedSongs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_feed_songs_total",
		Help: "Songs seen by the recommendation pipeline by stage (raw, kept)",
	}, []string{"stage"})

	interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_interactions_total",
		Help: "Recorded feed interactions by kind (liked, skipped, watched)",
	}, []string{"kind"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reels_http_request_duration_seconds",
		Help:    "Control API request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// ObserveConnector records one connector call.
func ObserveConnector(connector, outcome string, elapsed time.Duration) {
	connectorRequests.WithLabelValues(connector, outcome).Inc()
	connectorDuration.WithLabelValues(connector).Observe(elapsed.Seconds())
}

// RecordCascade records whether a cascade produced results.
func RecordCascade(cascade string, hit bool) {
	outcome := OutcomeEmpty
	if hit {
		outcome = OutcomeHit
	}
	cascadeResults.WithLabelValues(cascade, outcome).Inc()
}

// SetCircuitBreakerState marks state as the active breaker state for connector.
func SetCircuitBreakerState(connector, state string) {
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(connector, s).Set(v)
	}
}

// RecordBufferLoad counts a slot load by outcome.
func RecordBufferLoad(outcome string) {
	bufferLoads.WithLabelValues(outcome).Inc()
}

// SetBufferResident reports the resident slot count.
func SetBufferResident(n int) {
	bufferResident.Set(float64(n))
}

// AddFeedSongs counts songs at a pipeline stage.
func AddFeedSongs(stage string, n int) {
	feedSongs.WithLabelValues(stage).Add(float64(n))
}

// RecordInteraction counts an interaction by kind.
func RecordInteraction(kind string) {
	interactions.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one API request. route is the chi pattern, not the raw path.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
