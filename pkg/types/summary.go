package types

import "time"

// StageSummary is the outcome of one configured stage within a run.
type StageSummary struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Counters Counters      `json:"counters"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// RunSummary is the record of one complete run.
type RunSummary struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counters   Counters       `json:"counters"`
	Stages     []StageSummary `json:"stages"`
	FirstError string         `json:"first_error,omitempty"`
}

// Succeeded reports whether the run finished without a recorded error.
func (s RunSummary) Succeeded() bool { return s.FirstError == "" }

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }
