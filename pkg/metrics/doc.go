/*
Package metrics exposes Prometheus instrumentation for the alarm engine:
session pool occupancy and eviction counts, event log ring fill levels and
promotion/eviction counts, and admin API request latency. Gauges are kept
current by a Collector polling the pool and event log on a ticker; counters
are incremented directly at the call sites that own the event (admission
drop, eviction, ring promotion).

A small HealthChecker tracks named component readiness for /health,
/ready, and /live HTTP endpoints, and Timer is a convenience wrapper for
observing operation duration into a histogram.
*/
package metrics
