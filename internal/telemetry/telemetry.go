// Package telemetry sends relay counters and timings to a metrics backend.
//
// The only backend is DogStatsD; when metrics are disabled a NoopProvider is
// used so callers never branch on configuration.
package telemetry

import "time"

// Metric names.
const (
	MetricDispatch        = "relay.dispatch"
	MetricDeliveryLatency = "relay.delivery.duration"
	MetricTrackedSources  = "relay.ratelimit.sources"
	MetricTrackedDedup    = "relay.dedup.entries"
)

// Provider defines the metrics sink used by the relay.
type Provider interface {
	// IncrementCounter increments a counter metric
	IncrementCounter(name string, value int64, tags ...string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, tags ...string)

	// Timing records a timing metric
	Timing(name string, value time.Duration, tags ...string)

	// Close flushes and releases the backend.
	Close() error
}
