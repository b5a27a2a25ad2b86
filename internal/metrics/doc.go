// Package metrics exposes pipeline counters on a Prometheus endpoint.
package metrics
