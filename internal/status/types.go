package status

import "time"

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string  `json:"status"`
	LastRun *RunRef `json:"last_run,omitempty"`
}

// RunRef identifies a run and its outcome.
type RunRef struct {
	ID         string    `json:"id"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  bool      `json:"succeeded"`
}

type errorResponse struct {
	Error string `json:"error"`
}
