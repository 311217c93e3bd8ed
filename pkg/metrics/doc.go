// Package metrics provides Prometheus instrumentation for streamlimit
// components.
//
// Throttled streams are instrumented through the metrics-enabled
// constructors in pkg/throttle/stream:
//
//	r, err := stream.NewReaderWithMetrics(conn, 512*1024, time.Second, "download")
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Available Metrics
//
//   - streamlimit_throttle_wait_duration_seconds: time spent blocked waiting for bucket capacity
//   - streamlimit_throttle_tokens_available: tokens currently in the bucket
//   - streamlimit_throttle_rate_tokens_per_second: configured refill rate
//   - streamlimit_stream_transfers_total: throttled read/write calls
//   - streamlimit_stream_bytes_total: bytes moved through throttled streams
//   - streamlimit_stream_errors_total: inner stream errors observed
//
// All metrics carry a direction label ("read" or "write") and the
// stream_name given at construction.
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	r, err := stream.NewReaderWithConfigAndMetrics(conn, cfg, "download", metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	})
//
// Components implementing the Instrumentable interface support runtime
// enable/disable without reconstruction.
package metrics
