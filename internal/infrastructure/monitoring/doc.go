// Package monitoring provides Prometheus metrics for the gateway:
// HTTP request counters and latencies, session state and reconnects,
// send outcomes, and relay delivery outcomes.
package monitoring
