// Package metrics defines the Prometheus metrics exported by the service
// and a periodic collector for gauges sourced from component stats.
package metrics
