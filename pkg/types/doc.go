// Package types defines the shared domain types used across the sync
// pipeline: metric keys, observations and series, bound and fact records,
// the method bucket table, run counters and the Result wrapper returned by
// concurrent tasks.
//
// These are the canonical in-memory representations, separate from the JSON
// shapes exchanged with the remote platform (see internal/remote).
package types
