// Package status serves the read-only run status API and the manual run
// trigger.
//
// Routes:
//
//	GET  /api/v1/health     liveness plus the outcome of the last run
//	GET  /api/v1/runs       recent run summaries, newest first
//	GET  /api/v1/runs/{id}  one run summary
//	POST /api/v1/runs       start a run now (rate limited)
//	GET  /metrics           Prometheus metrics
//
// When API key auth is enabled every route except health requires the key
// in the configured header.
package status
