package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for streamlimit components.
type Registry struct {
	// Throttle Metrics
	ThrottleWaitTime *prometheus.HistogramVec
	ThrottleTokens   *prometheus.GaugeVec
	ThrottleRate     *prometheus.GaugeVec

	// Stream Metrics
	StreamTransfers *prometheus.CounterVec
	StreamBytes     *prometheus.CounterVec
	StreamErrors    *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by streamlimit components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ThrottleWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "streamlimit",
				Subsystem: "throttle",
				Name:      "wait_duration_seconds",
				Help:      "Time spent blocked waiting for bucket capacity",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"direction", "stream_name"},
		),

		ThrottleTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "streamlimit",
				Subsystem: "throttle",
				Name:      "tokens_available",
				Help:      "Number of tokens currently available in the bucket",
			},
			[]string{"direction", "stream_name"},
		),

		ThrottleRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "streamlimit",
				Subsystem: "throttle",
				Name:      "rate_tokens_per_second",
				Help:      "Configured refill rate in tokens per second",
			},
			[]string{"direction", "stream_name"},
		),

		StreamTransfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlimit",
				Subsystem: "stream",
				Name:      "transfers_total",
				Help:      "Total number of throttled read/write calls",
			},
			[]string{"direction", "stream_name"},
		),

		StreamBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlimit",
				Subsystem: "stream",
				Name:      "bytes_total",
				Help:      "Total bytes transferred through throttled streams",
			},
			[]string{"direction", "stream_name"},
		),

		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamlimit",
				Subsystem: "stream",
				Name:      "errors_total",
				Help:      "Total number of inner stream errors observed",
			},
			[]string{"direction", "stream_name"},
		),
	}
}
