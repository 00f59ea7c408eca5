package types

import "sync"

// Counters is a tally of per-run outcomes. Components return their own
// Counters; the run aggregates them with RunCounters.Merge.
type Counters struct {
	Missing       int `json:"missing"`
	Valid         int `json:"valid"`
	Errors        int `json:"errors"`
	Fallbacks     int `json:"fallbacks"`
	BoundWarnings int `json:"bound_warnings"`
	Invalid       int `json:"invalid"`
	Imported      int `json:"imported"`
	Ignored       int `json:"ignored"`
	Imputed       int `json:"imputed"`
	Deleted       int `json:"deleted"`
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	c.Missing += o.Missing
	c.Valid += o.Valid
	c.Errors += o.Errors
	c.Fallbacks += o.Fallbacks
	c.BoundWarnings += o.BoundWarnings
	c.Invalid += o.Invalid
	c.Imported += o.Imported
	c.Ignored += o.Ignored
	c.Imputed += o.Imputed
	c.Deleted += o.Deleted
	return c
}

// Map returns the counters keyed by their exported metric label.
func (c Counters) Map() map[string]int {
	return map[string]int{
		"missing":        c.Missing,
		"valid":          c.Valid,
		"errors":         c.Errors,
		"fallbacks":      c.Fallbacks,
		"bound_warnings": c.BoundWarnings,
		"invalid":        c.Invalid,
		"imported":       c.Imported,
		"ignored":        c.Ignored,
		"imputed":        c.Imputed,
		"deleted":        c.Deleted,
	}
}

// RunCounters is the single per-run aggregate. Merge is its only mutator.
type RunCounters struct {
	mu sync.Mutex
	c  Counters
}

// Merge adds o to the aggregate.
func (r *RunCounters) Merge(o Counters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.c = r.c.Add(o)
}

// Snapshot returns a copy of the current totals.
func (r *RunCounters) Snapshot() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c
}
