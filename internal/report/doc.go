// Package report exposes run outcomes as Prometheus metrics.
//
// The registry is served by the status API and, when a textfile path is
// configured, written after every run in the text exposition format for the
// node exporter's textfile collector.
package report
