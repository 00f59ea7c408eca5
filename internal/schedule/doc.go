// Package schedule drives periodic runs in daemon mode.
//
// Runs are started by a cron expression, optionally once at start-up, and
// on demand through Trigger. At most one run executes at a time; a tick
// that arrives while a run is active is skipped.
package schedule
