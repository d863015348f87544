// Package metrics exposes Prometheus counters and gauges for the watcher, the
// session coordinator, the relay and the HTTP API on a private registry.
package metrics
