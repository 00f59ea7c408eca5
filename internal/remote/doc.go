// Package remote is the HTTP client for the aggregate-data platform.
//
// Every request made through a Client holds one slot of the run's Gate for
// the whole round trip (request write and response body read), so fetches,
// bulk uploads and legacy per-record posts all share the same concurrency
// budget. Retry sleeps happen in callers, outside the gate.
//
// Auth: "ApiToken <token>" header (mode token), HTTP basic (mode basic), or
// none. Secrets are resolved from environment variables at request time.
//
// Non-2xx responses are returned as *StatusError so callers can classify
// them as retryable or permanent.
package remote
