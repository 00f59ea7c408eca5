// Package runner executes one synchronisation run over every configured
// stage.
//
// A run builds one remote client and one request gate, checks the caller's
// authorities and selects the bounds upload endpoint once, then executes
// min/max stages in order followed by the count stages concurrently. Stage
// failures are recorded in the run summary; they do not stop the remaining
// stages. Each finished summary is handed to the registered sinks.
package runner
